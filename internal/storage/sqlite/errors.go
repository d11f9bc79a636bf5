package sqlite

import "errors"

// Sentinel errors for storage operations. Defined here rather than in the
// storage package to avoid an import cycle; storage re-exports them.
var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrStateConflict indicates an illegal lifecycle transition, such as
	// publishing a non-draft rule or deleting a published one
	ErrStateConflict = errors.New("state conflict")

	// ErrReferentialConflict indicates a delete was rejected because the
	// entity is still referenced (e.g. a rule cited by workflow claim sources)
	ErrReferentialConflict = errors.New("referential conflict")

	// ErrValidation indicates malformed input, such as an invalid condition
	// tree or a bad enum value
	ErrValidation = errors.New("validation failed")
)
