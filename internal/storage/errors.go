package storage

import "smart-secretary/datastore"

var (
	// ErrLogCorrupted is recovered automatically: the file is backed up and the log reset.
	ErrLogCorrupted = datastore.ErrCorrupted

	// ErrStorageUnavailable means the log cannot be read or written. Callers must treat
	// it as fatal since throttling can no longer be guaranteed.
	ErrStorageUnavailable = datastore.ErrUnavailable
)
