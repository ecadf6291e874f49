// Package logging builds the one zap.SugaredLogger each coordinator carries,
// replacing the teacher's log.SetPrefix/log.Println call sites (cmd/server's
// "M "/"R0 " prefixes) with structured, leveled logging grounded on
// tinykv/scheduler's zap usage throughout server/.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger prefixed with this coordinator's id, the
// structured equivalent of the teacher's `log.SetPrefix("M  ")` /
// `log.SetPrefix("R" + idx)`.
func New(coordinatorID int, level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}

	return base.Sugar().With("coordinator", coordinatorID), nil
}

// Nop returns a logger that discards everything, for tests that don't want
// log noise but still need a non-nil *zap.SugaredLogger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
