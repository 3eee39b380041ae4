package order

import (
	"errors"
	"fmt"
	"strings"

	"orders/internal/pkg/errs"
)

// Status represents the lifecycle state of an order.
// It is a closed enumeration guarded by a static transition table:
//
//	Pending ──> Shipping ──> Delivered
//	   │           │
//	   └───────────┴──────> Cancelled
//
// Delivered and Cancelled are terminal. Status is persisted as its integer value
// and rendered as its name in JSON and events.
type Status int

const (
	// Unknown (0) catches uninitialized values and is never a valid state.
	Unknown Status = iota

	// Pending is the initial status of every new order.
	Pending

	// Shipping means the order has left the warehouse.
	Shipping

	// Delivered is terminal.
	Delivered

	// Cancelled is terminal.
	Cancelled
)

// ErrInvalidTransition is the sentinel behind every InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError reports a (From, To) pair that the transition table rejects.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func NewInvalidTransitionError(from, to Status) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// transitions maps each state to the set of states it may move to.
// A state with an empty set is terminal.
//
//nolint:gochecknoglobals // static table, never mutated
var transitions = map[Status][]Status{
	Pending:   {Shipping, Cancelled},
	Shipping:  {Delivered, Cancelled},
	Delivered: {},
	Cancelled: {},
}

//nolint:gochecknoglobals // lookup table
var statusNames = map[Status]string{
	Pending:   "Pending",
	Shipping:  "Shipping",
	Delivered: "Delivered",
	Cancelled: "Cancelled",
}

// Statuses returns every valid status in declaration order.
func Statuses() []Status {
	return []Status{Pending, Shipping, Delivered, Cancelled}
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(name string) (Status, error) {
	trimmed := strings.TrimSpace(name)
	for s, n := range statusNames {
		if strings.EqualFold(n, trimmed) {
			return s, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause(
		"status is invalid",
		fmt.Errorf("%q is not a known status", name),
	)
}

// Validate checks that s is one of the four defined states.
func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok {
		return errs.NewValueIsInvalidErrorWithCause("status is invalid", fmt.Errorf("%d is not a valid status", s))
	}
	return nil
}

// String returns the status name, or "Unknown" for anything outside the enumeration.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// AllowedNext lists the states reachable from s in one step.
func (s Status) AllowedNext() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether (s, next) is an edge of the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next when the table allows it, or an *InvalidTransitionError.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return Unknown, NewInvalidTransitionError(s, next)
	}
	return next, nil
}

// MarshalText renders the status name for JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts a status name, see ParseStatus.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
