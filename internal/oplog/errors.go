package oplog

import (
	"github.com/pkg/errors"

	"github.com/loro-go/loro/internal/identity"
)

// Sentinel errors surfaced at the OpLog boundary (spec.md §4.1 "Failure",
// §6.3 error kinds). Wrapped with github.com/pkg/errors so a caller's
// "%+v" format carries the full cause chain down to the offending
// op/change ID (SPEC_FULL.md Ambient Stack).
var (
	// ErrCorrupt marks an import as fatal-to-the-batch: the decoded change
	// cannot possibly be valid (e.g. it claims a dep ID that is a
	// descendant of itself). Import aborts atomically on this error.
	ErrCorrupt = errors.New("oplog: corrupt change")

	// ErrInvariant is raised when an internally-authored change would
	// violate an OpLog invariant (e.g. non-dense counters). This never
	// happens from remote import; it is a programming-error fail-fast.
	ErrInvariant = errors.New("oplog: invariant violation")
)

// MissingDepError is not a failure: it signals the change has been
// buffered pending a dependency that has not yet arrived (spec.md §4.1).
type MissingDepError struct {
	Missing []identity.ID
}

// ErrMissingDep is the sentinel identity behind every MissingDepError,
// usable with errors.Is.
var errMissingDepSentinel = errors.New("oplog: missing dependency")

func (e *MissingDepError) Error() string {
	return "oplog: missing dependency"
}

func (e *MissingDepError) Is(target error) bool {
	return target == errMissingDepSentinel
}

// ErrMissingDep lets callers write `errors.Is(err, oplog.ErrMissingDep)`.
var ErrMissingDep = errMissingDepSentinel
