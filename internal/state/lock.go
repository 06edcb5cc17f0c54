package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFile is the run-lock filename under the base directory.
const LockFile = "run.lock"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Lock guards against overlapping pipeline runs. A new scheduled trigger
// firing before the previous run finished would otherwise race on markers
// and emit duplicate issues.
type Lock struct {
	path string
}

// AcquireLock takes the run lock under baseDir. A lock older than stale is
// treated as abandoned and replaced; stale <= 0 means locks never expire.
func AcquireLock(baseDir string, stale time.Duration) (*Lock, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	path := filepath.Join(baseDir, LockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if os.IsExist(err) {
		if stale > 0 {
			if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > stale {
				_ = os.Remove(path) //nolint:errcheck // stale lock cleanup
				return AcquireLock(baseDir, 0)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	fmt.Fprintf(f, "pid=%d acquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
