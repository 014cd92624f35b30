package state

import (
	"github.com/gofrs/flock"

	"github.com/tftio/org-gh/internal/types"
)

// Lock holds the advisory lock serializing operations on one outline.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock next to the baseline file,
// failing fast with a *types.BusyError when another invocation holds
// it. Callers must Release when the operation finishes.
func Acquire(baselinePath string) (*Lock, error) {
	fl := flock.New(baselinePath + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, &types.StateError{Path: fl.Path(), Msg: "acquiring lock: " + err.Error()}
	}
	if !ok {
		return nil, &types.BusyError{Path: fl.Path()}
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (l *Lock) Release() {
	if l == nil || l.fl == nil {
		return
	}
	_ = l.fl.Unlock()
}
