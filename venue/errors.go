package venue

import (
	"errors"
	"fmt"
)

// Kind classifies a venue failure for the retry policy.
type Kind int

const (
	// Retryable covers transient failures: network, timeouts, rate limits.
	Retryable Kind = iota
	// Fatal covers failures retrying can't fix: auth, invalid symbol,
	// rejected parameters.
	Fatal
)

// Error is the single normalized error kind every Venue implementation
// returns.
type Error struct {
	Op     string
	Symbol string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("venue: %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("venue: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrOrderNotOpen is returned by CancelOrder when the order has already
// filled or been cancelled at the venue. Callers racing an exit leg treat it
// as success.
var ErrOrderNotOpen = errors.New("venue: order is not open")

// IsRetryable reports whether err is a transient venue failure.
func IsRetryable(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == Retryable
}

// IsFatal reports whether err is a venue failure retrying can't fix.
func IsFatal(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == Fatal
}
