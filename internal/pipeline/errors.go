package pipeline

import "errors"

var (
	// ErrTransientConnection marks a connectivity failure the backup
	// pipeline may retry. Anything not wrapped in it fails fast.
	ErrTransientConnection = errors.New("transient connection failure")

	// ErrCollectionNotFound reports a backup target missing from the source.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is the expected, non-destructive outcome of
	// restoring onto an existing collection without force.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrBackupFileNotFound reports a restore target missing from the
	// backup set.
	ErrBackupFileNotFound = errors.New("backup file not found")

	// ErrCorruptBackup reports a backup file that is not one well-formed
	// JSON array, typically the leftovers of an interrupted backup.
	ErrCorruptBackup = errors.New("corrupt backup file")

	// ErrDestinationUnwritable reports a backup destination that cannot be
	// created or written.
	ErrDestinationUnwritable = errors.New("backup destination unwritable")
)

// IsTransient reports whether the backup pipeline may retry after err.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientConnection)
}
