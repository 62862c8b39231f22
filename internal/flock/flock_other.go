//go:build !unix && !windows

package flock

import "os"

// TryLock always fails with ErrUnsupported.
func TryLock(f *os.File, exclusive bool) (bool, error) {
	return false, ErrUnsupported
}

// Unlock always fails with ErrUnsupported.
func Unlock(f *os.File) error {
	return ErrUnsupported
}
