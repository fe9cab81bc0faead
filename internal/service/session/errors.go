package session

import "errors"

// Sentinel errors for the session service layer.
var (
	ErrNotFound      = errors.New("upload session not found")
	ErrInvalidFormat = errors.New("uploaded content is not a PDF document")
	ErrTooLarge      = errors.New("uploaded file exceeds the size limit")
)
