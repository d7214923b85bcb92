package locations

import (
	"errors"
	"fmt"
)

// ErrInvariant marks programmer or data-contract errors: a required node is
// missing, a site count targets an unknown root, a parent chain cannot be
// resolved, or a search record has no resolvable kind. Callers test for it
// with errors.Is and treat it as fatal for the current render.
var ErrInvariant = errors.New("location tree invariant violated")

// InvariantError describes a single invariant violation.
type InvariantError struct {
	Op     string // operation that detected the violation
	ID     string // offending node id, if any
	Reason string
}

func (e *InvariantError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s: %s", ErrInvariant, e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", ErrInvariant, e.Op, e.ID, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariant(op, id, format string, args ...any) error {
	return &InvariantError{Op: op, ID: id, Reason: fmt.Sprintf(format, args...)}
}
