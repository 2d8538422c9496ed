// Package lockfile provides cross-process mutual exclusion through an
// atomically created marker file. The marker is an existence flag with
// no content semantics.
//
// The lock is released on every exit path of a live process, including
// signal-initiated termination. A marker orphaned by a hard crash is an
// operational caveat: it must be removed by hand, the lock does not
// self-heal.
package lockfile

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning means another process holds the marker. Overlapping
// scheduler invocations are expected; callers treat this as a clean,
// successful no-op.
var ErrAlreadyRunning = errors.New("lock marker already present, another run is in progress")

// Lock is an exclusively held run marker.
type Lock struct {
	path    string
	release sync.Once
}

// Acquire atomically creates the marker file at path. O_EXCL guarantees
// exactly one concurrent caller wins.
func Acquire(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyRunning
		}
		return nil, errors.Wrapf(err, "failed to create lock marker at %s", path)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "failed to close lock marker")
	}

	log.Debug().Str("path", path).Msg("Lock marker acquired")

	return &Lock{path: path}, nil
}

// Release removes the marker. Safe to call more than once; only the
// first call removes the file.
func (l *Lock) Release() {
	l.release.Do(func() {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", l.path).Msg("Failed to remove lock marker")
			return
		}
		log.Debug().Str("path", l.path).Msg("Lock marker released")
	})
}
