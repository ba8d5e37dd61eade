// Package apperr classifies failures so callers can branch on cause
// instead of matching message text.
package apperr

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a malformed or incomplete client request.
	KindValidation
	// KindProcessing is a failure while decoding, inferring or rendering.
	KindProcessing
	// KindProvisioning is a failure to make the model artifact available.
	KindProvisioning
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProcessing:
		return "processing"
	case KindProvisioning:
		return "provisioning"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed alongside the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func Processing(op string, err error) error {
	return &Error{Kind: KindProcessing, Op: op, Err: err}
}

func Provisioning(op string, err error) error {
	return &Error{Kind: KindProvisioning, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
