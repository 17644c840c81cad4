package ports

import "errors"

// Storage adapters translate their engine-specific failures into these
// sentinels so services can classify without importing driver packages.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicate indicates a uniqueness constraint rejected a create.
	ErrDuplicate = errors.New("duplicate entity")
	// ErrStateConflict indicates a guarded update re-read an entity and
	// found it in a state the caller may not mutate.
	ErrStateConflict = errors.New("entity state conflict")
)
