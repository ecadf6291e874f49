package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/logging"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := logging.New(0, "not-a-level")
	assert.Error(t, err)
}

func TestNewBuildsLogger(t *testing.T) {
	l, err := logging.New(2, "debug")
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Infow("test message", "key", "value")
}

func TestNopNeverPanics(t *testing.T) {
	l := logging.Nop()
	require.NotNil(t, l)
	l.Infow("discarded")
}
