package token

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when no token account exists for an ID.
var ErrAccountNotFound = errors.New("token account not found")

// InsufficientTokensError is returned by balance checks when an account
// cannot cover the required amount. Available already excludes any
// outstanding admission reservations.
type InsufficientTokensError struct {
	Required  int64
	Available int64
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: required %d, available %d", e.Required, e.Available)
}
