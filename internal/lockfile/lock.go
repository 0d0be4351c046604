// Package lockfile provides cross-platform advisory file locking, used to
// guarantee that at most one process holds an ldbm instance directory open
// at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the lock file ldbm.Open acquires inside an instance directory.
const FileName = "ldbm.lock"

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lockfile: instance directory is locked by another process")

// IsLocked reports whether err indicates the lock is already held elsewhere.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLockBusy)
}

// InstanceLock holds an exclusive, non-blocking lock on an instance
// directory's lock file for the lifetime of an open Engine.
type InstanceLock struct {
	f *os.File
}

// Lock acquires an exclusive non-blocking lock on dir/ldbm.lock. It returns
// ErrLockBusy if another process already holds it — ldbm.Open surfaces this
// directly rather than silently opening a second engine against the same
// SQLite file.
func Lock(dir string) (*InstanceLock, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: opening %s: %w", path, err)
	}
	if err := FlockExclusiveNonBlock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLockBusy) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("lockfile: locking %s: %w", path, err)
	}
	return &InstanceLock{f: f}, nil
}

// Unlock releases the lock and closes the underlying file handle.
func (l *InstanceLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := FlockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
