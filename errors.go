package loro

import "github.com/pkg/errors"

// Error kinds surfaced at the public boundary (spec.md §6.3). Wrapped with
// github.com/pkg/errors throughout so a %+v format at the boundary carries
// a full stack, the same diagnostic posture the teacher's package takes
// with its doc-comment-heavy, fail-loud style.
var (
	ErrInvalidOp        = errors.New("loro: invalid op")
	ErrImportCorrupt    = errors.New("loro: import corrupt")
	ErrIncompatible     = errors.New("loro: incompatible wire version")
	ErrConcurrent       = errors.New("loro: concurrent modification")
	ErrDocClosed        = errors.New("loro: doc closed")
	ErrNotFound         = errors.New("loro: not found")
	ErrOutOfBounds      = errors.New("loro: index out of bounds")
	ErrCannotDeleteRoot = errors.New("loro: cannot delete a root container")
)
