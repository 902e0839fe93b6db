package domain

import "errors"

// Sentinel errors shared by services, repositories and the HTTP layer.
// Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrNameConflict       = errors.New("name is already taken")
	ErrValidation         = errors.New("validation failed")
	ErrLinkedEntityExists = errors.New("entity is referenced by other records")
	ErrForbidden          = errors.New("forbidden")
)
