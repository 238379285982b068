package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards a database against concurrent ingestion runs.
type RunLock struct {
	lock *flock.Flock
}

// ErrLocked is returned by Lock when another process holds the run lock.
type ErrLocked struct {
	DatabasePath string
}

func (e *ErrLocked) Error() string {
	return fmt.Sprintf("another ingestion run is using %s", e.DatabasePath)
}

// Lock acquires the run lock next to the database file without blocking. It
// does not open the database, so it can be taken before migrations run.
func Lock(databasePath string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(databasePath), 0o700); err != nil {
		return nil, err
	}
	lockPath := databasePath + ".lock"
	l := flock.New(lockPath)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, &ErrLocked{DatabasePath: databasePath}
	}
	return &RunLock{lock: l}, nil
}

// Unlock releases the run lock.
func (r *RunLock) Unlock() error {
	if r == nil || r.lock == nil {
		return nil
	}
	return r.lock.Unlock()
}
