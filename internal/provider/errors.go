package provider

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks transport-level failures (network errors, timeouts,
// 5xx responses). No charge or credit ever happens on this path; callers may
// retry at their own discretion.
var ErrUnavailable = errors.New("provider unavailable")

// RejectedError is an application-level failure reported inside the
// provider's own envelope (plate not found, invalid status). Distinct from
// ErrUnavailable: the provider answered, the answer is a refusal.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request: %s", e.Reason)
}
