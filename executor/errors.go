package executor

import (
	"fmt"
	"github.com/pkg/errors"
	"github.com/xyths/qbracket/exchange"
)

// Kind classifies failures by how the executor recovers from them.
type Kind int

const (
	KindTransient  Kind = iota // network or venue hiccup, next cycle retries
	KindValidation             // malformed signal, rejected before any venue call
	KindSizing                 // computed quantity is not positive
	KindRejection              // venue refused the order parameters
	KindStateDrift             // ledger and venue disagree about an order
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSizing:
		return "sizing"
	case KindRejection:
		return "rejection"
	case KindStateDrift:
		return "state_drift"
	default:
		return "transient"
	}
}

var ErrInvalidSize = errors.New("invalid size")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify wraps err with the kind implied by its cause. Errors already classified are returned as is.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var apiErr *exchange.APIError
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		return newError(KindStateDrift, op, err)
	case errors.As(err, &apiErr):
		return newError(KindRejection, op, err)
	default:
		return newError(KindTransient, op, err)
	}
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
