package staging

import "errors"

// Sentinel errors for the staging service layer.
var (
	ErrNotFound        = errors.New("staged entity not found")
	ErrNoActiveSession = errors.New("no active upload session")
	ErrSessionFrozen   = errors.New("session is frozen; staged data is immutable")
	ErrSessionParsing  = errors.New("session is still parsing; staged data is not reviewable yet")
	ErrInvalidRole     = errors.New("unknown image role")
)
