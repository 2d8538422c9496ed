package lockfile_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/lockfile"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refill.lock")

	lock, err := lockfile.Acquire(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	lock.Release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSecondAcquireFailsWithAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refill.lock")

	lock, err := lockfile.Acquire(path)
	require.NoError(t, err)
	defer lock.Release()

	_, err = lockfile.Acquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockfile.ErrAlreadyRunning))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refill.lock")

	first, err := lockfile.Acquire(path)
	require.NoError(t, err)
	first.Release()

	second, err := lockfile.Acquire(path)
	require.NoError(t, err)
	second.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refill.lock")

	lock, err := lockfile.Acquire(path)
	require.NoError(t, err)

	lock.Release()
	lock.Release()
}

func TestConcurrentAcquireHasExactlyOneWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refill.lock")

	const attempts = 16
	var wins, overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := lockfile.Acquire(path)
			if err == nil {
				wins.Add(1)
				// hold until all goroutines attempted
				return
			}
			if errors.Is(err, lockfile.ErrAlreadyRunning) {
				overlaps.Add(1)
				return
			}
			t.Errorf("unexpected acquire error: %v", err)
			_ = lock
		}()
	}

	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, attempts-1, overlaps.Load())
}
