package importer

import "errors"

// Sentinel errors for the import service.
var (
	ErrNotFound        = errors.New("upload session not found")
	ErrAlreadyImported = errors.New("session has already been imported")
	ErrNotReady        = errors.New("session is not ready for import")
)
