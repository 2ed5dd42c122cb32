package store

import "errors"

// ErrLocked is returned by AcquireLock when another process holds the lock.
var ErrLocked = errors.New("store: database is locked by another process")

// LockPath is the lock file guarding the database at dbPath.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}
