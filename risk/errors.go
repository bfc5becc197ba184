package risk

import "errors"

// Sizing/calc input errors. These reject the candidate trade before any
// order is submitted; no state is mutated on their account.
var (
	ErrInvalidRisk      = errors.New("risk: per-unit risk must be positive")
	ErrZeroQuantity     = errors.New("risk: sized quantity is zero after lot-step flooring")
	ErrInvalidStop      = errors.New("risk: stop must be below entry")
	ErrInsufficientData = errors.New("risk: not enough samples")
	ErrInvalidConfig    = errors.New("risk: invalid parameter")
)
