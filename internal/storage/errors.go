package storage

import "github.com/ecovet/ecovet/internal/storage/sqlite"

// Error taxonomy re-exported from the sqlite package so callers can classify
// failures with errors.Is without importing the backend directly.
var (
	ErrNotFound            = sqlite.ErrNotFound
	ErrStateConflict       = sqlite.ErrStateConflict
	ErrReferentialConflict = sqlite.ErrReferentialConflict
	ErrValidation          = sqlite.ErrValidation
)
