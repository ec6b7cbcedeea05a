// Package lockmgr provides the per-repository exclusive advisory lock
// that serializes mutating actions against a single repo directory.
package lockmgr

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

var (
	ErrContended  = errors.New("repo is locked by another process")
	ErrDirMissing = errors.New("repo directory does not exist")
	ErrNested     = errors.New("nested lock acquisition for a different repo")
)

// Interface is satisfied by both Locker (real flock-based locking) and
// NullLocker (a no-op stand-in for backends under test).
type Interface interface {
	Acquire(repoDir, repoName string) (*Lock, error)
	Release(lock *Lock) error
}

// Lock is an active, held advisory lock for one repo. Release must be
// called on every exit path, including error paths, per spec §4.2/§5.
type Lock struct {
	repoName string
	path     string
	fl       *flock.Flock
}

// Locker acquires and releases per-repo locks. The zero value is ready
// to use; each Locker permits only one active lock at a time (spec §4.2),
// so a process that shares one Locker holds at most one repo lock.
type Locker struct {
	mu     sync.Mutex
	active *Lock
}

// NullLocker is a Locker substitute for backends under test that don't
// exercise real OS file locks (e.g. against afero.MemMapFs).
type NullLocker struct{}

// Acquire takes a non-blocking exclusive lock on {repoDir}/{repoName}.lock.
// Acquisition fails immediately (no retry) if the directory is missing or
// another holder already owns the lock.
func (l *Locker) Acquire(repoDir, repoName string) (*Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active != nil {
		panic(fmt.Sprintf("lockmgr: nested acquire for %q while holding %q", repoName, l.active.repoName))
	}

	if _, err := statDir(repoDir); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDirMissing, repoDir)
	}

	path := filepath.Join(repoDir, repoName+".lock")
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %q (%w)", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrContended, repoName)
	}

	lock := &Lock{repoName: repoName, path: path, fl: fl}
	l.active = lock

	return lock, nil
}

// Release unlocks and unlinks the lock file. It is safe to call once per
// successful Acquire and must run on every exit path of the caller.
func (l *Locker) Release(lock *Lock) error {
	if lock == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == lock {
		l.active = nil
	}

	if err := lock.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %q (%w)", lock.path, err)
	}

	if err := removeLockFile(lock.path); err != nil {
		return fmt.Errorf("failed to remove lock file: %q (%w)", lock.path, err)
	}

	return nil
}
