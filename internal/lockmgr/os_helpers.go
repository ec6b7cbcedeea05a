package lockmgr

import (
	"errors"
	"os"
)

// statDir and removeLockFile go straight to the real OS filesystem: an
// advisory file lock is a kernel primitive afero cannot virtualize, so
// the lock file itself always lives on disk even when the rest of a
// repo's tree is being exercised through afero in tests.
func statDir(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func removeLockFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// Acquire is a no-op that always succeeds, for backends exercised purely
// against afero.MemMapFs where no real lock file can exist.
func (NullLocker) Acquire(_, _ string) (*Lock, error) {
	return &Lock{}, nil
}

// Release is a no-op matching NullLocker.Acquire.
func (NullLocker) Release(_ *Lock) error {
	return nil
}
