package rate

import "errors"

var (
	// ErrInvalidPolicy is returned by Policy.Validate for non-positive limits.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
