//go:build !unix

package store

// Lock is a no-op where advisory file locks are unavailable.
type Lock struct{}

// AcquireLock always succeeds.
func AcquireLock(dbPath string) (*Lock, error) {
	return &Lock{}, nil
}

// Release does nothing.
func (l *Lock) Release() error {
	return nil
}
