package exchange

import (
	"fmt"
	"github.com/pkg/errors"
)

// APIError is a venue rejection of a request, e.g. an invalid price or quantity.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("<APIError> code=%d, msg=%s", e.Code, e.Message)
}

// ErrOrderNotFound is returned when the venue does not know the order.
var ErrOrderNotFound = errors.New("order not found")
