package tid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := Encode(true, 5, 8)
	assert.True(t, IsLocked(raw))
	assert.Equal(t, uint64(5), GetWts(raw))
	assert.Equal(t, uint64(8), GetRts(raw))
}

func TestEncodeSaturatesDelta(t *testing.T) {
	raw := Encode(false, 0, maxDelta+100)
	assert.Equal(t, maxDelta, GetRts(raw)-GetWts(raw))
}

func TestLockUnlock(t *testing.T) {
	w := New(0)
	latest, ok := w.Lock()
	require.True(t, ok)
	assert.False(t, IsLocked(latest))

	_, ok = w.Lock()
	assert.False(t, ok, "second lock attempt must not spin or succeed")

	w.Unlock()
	assert.False(t, w.IsLocked())
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	w := New(0)
	assert.Panics(t, func() { w.Unlock() })
}

func TestUnlockWithCommit(t *testing.T) {
	w := New(0)
	_, ok := w.Lock()
	require.True(t, ok)

	w.UnlockWithCommit(7)
	assert.False(t, w.IsLocked())
	assert.Equal(t, uint64(7), w.GetWts())
	assert.Equal(t, uint64(7), w.GetRts())
}

// TestLockExclusivity is property 2 from spec.md §8: at any moment at most
// one goroutine may observe success from Lock().
func TestLockExclusivity(t *testing.T) {
	w := New(0)
	const n = 64
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := w.Lock()
			successes[i] = ok
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestValidateReadKeySucceedsWithinRts(t *testing.T) {
	w := New(5) // wts=5 rts=5
	readTid := w.Raw()

	ok, written := w.ValidateReadKey(readTid, 5, false)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), GetWts(written))
}

func TestValidateReadKeyFailsOnWtsChange(t *testing.T) {
	w := New(5)
	readTid := w.Raw()

	_, ok := w.Lock()
	require.True(t, ok)
	w.UnlockWithCommit(6) // wts moves to 6

	ok2, _ := w.ValidateReadKey(readTid, 6, true)
	assert.False(t, ok2)
}

// TestScarExtendsRts is scenario S4 from spec.md §8.
func TestScarExtendsRts(t *testing.T) {
	w := New(5) // wts=5 rts=5
	readTid := w.Raw()

	ok, written := w.ValidateReadKey(readTid, 8, true)
	assert.True(t, ok)
	assert.Equal(t, uint64(8), GetRts(written))
	assert.Equal(t, uint64(5), GetWts(written))
	assert.Equal(t, uint64(5), w.GetWts())
	assert.Equal(t, uint64(8), w.GetRts())
}

func TestSiloDoesNotExtendRts(t *testing.T) {
	w := New(5)
	readTid := w.Raw()

	ok, _ := w.ValidateReadKey(readTid, 8, false)
	assert.False(t, ok)
	assert.Equal(t, uint64(5), w.GetRts())
}

func TestValidateReadKeyFailsWhenLockedByOther(t *testing.T) {
	w := New(5)
	readTid := w.Raw()
	_, ok := w.Lock()
	require.True(t, ok)

	ok2, _ := w.ValidateReadKey(readTid, 8, true)
	assert.False(t, ok2)
}

// TestMonotonicity is property 1 from spec.md §8.
func TestMonotonicity(t *testing.T) {
	w := New(0)
	last := uint64(0)
	for i := uint64(1); i <= 10; i++ {
		_, ok := w.Lock()
		require.True(t, ok)
		w.UnlockWithCommit(last + i)
		assert.Greater(t, w.GetWts(), last)
		last = w.GetWts()
	}
}
