package backupset

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockFilename = ".mongosnap.lock"

const lockRetryInterval = 100 * time.Millisecond

// Lock is an exclusive advisory lock on a backup-set root, held for the
// duration of one run so two runs cannot interleave writes into the same set.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the run lock for root, creating the root first if needed.
// It blocks until the lock is granted or ctx expires.
func Acquire(ctx context.Context, root string) (*Lock, error) {
	if err := EnsureDir(root); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(root, lockFilename))
	ok, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("lock backup set %q: %w", root, err)
	}
	if !ok {
		return nil, fmt.Errorf("backup set %q is locked by another run", root)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call once per Acquire.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
