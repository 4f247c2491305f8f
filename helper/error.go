package helper

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by database handlers when no matching record exists.
var ErrNotFound = errors.New("record not found")

// NewError wraps err with a short trace of the operation that failed.
// The returned error keeps err in its chain.
func NewError(trace string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", trace, err)
}
