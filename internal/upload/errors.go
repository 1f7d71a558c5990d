package upload

import "fmt"

// Kind classifies an upload failure for the HTTP layer.
type Kind int

const (
	// KindUnauthorized: missing or invalid session token.
	KindUnauthorized Kind = iota + 1
	// KindValidation: bad channel/episode linkage or malformed request.
	KindValidation
	// KindNotFound: unknown channel or episode.
	KindNotFound
	// KindUpstream: object store or metadata store failure.
	KindUpstream
	// KindConsistency: an expected cache slot or record was missing after a
	// committed write. Scoped to the single request.
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindUpstream:
		return "upstream"
	case KindConsistency:
		return "consistency"
	}
	return "unknown"
}

// Error carries the failure class alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upload %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("upload %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
