//go:build unix

package fs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/aretw0/todosync/pkg/core"
)

// tryLock takes an exclusive advisory lock without waiting.
func tryLock(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return core.ErrLocked
	}
	return err
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
