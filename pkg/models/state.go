package models

type LoanState string

const (
	LoanSimulated    LoanState = "simulated"
	LoanRequested    LoanState = "requested"
	LoanApproved     LoanState = "approved"
	LoanActive       LoanState = "active"
	LoanCompleted    LoanState = "completed"
	LoanRejected     LoanState = "rejected"
	LoanPrecancelled LoanState = "precancelled"
)

type LoanEvent string

const (
	EventSubmit    LoanEvent = "submit"
	EventApprove   LoanEvent = "approve"
	EventReject    LoanEvent = "reject"
	EventDisburse  LoanEvent = "disburse"
	EventPay       LoanEvent = "pay"
	EventComplete  LoanEvent = "complete"
	EventPrecancel LoanEvent = "precancel"
)

type transitionKey struct {
	from  LoanState
	event LoanEvent
}

// transitions is the whole lifecycle. Anything missing here is rejected.
var transitions = map[transitionKey]LoanState{
	{LoanSimulated, EventSubmit}:  LoanRequested,
	{LoanRequested, EventApprove}: LoanApproved,
	{LoanRequested, EventReject}:  LoanRejected,
	{LoanApproved, EventDisburse}: LoanActive,
	{LoanActive, EventPay}:        LoanActive,
	{LoanActive, EventComplete}:   LoanCompleted,
	{LoanActive, EventPrecancel}:  LoanPrecancelled,
}

// Transition returns the state reached by applying event in from.
func Transition(from LoanState, event LoanEvent) (LoanState, bool) {
	to, ok := transitions[transitionKey{from, event}]
	return to, ok
}

// Valid reports whether s is a known state.
func (s LoanState) Valid() bool {
	switch s {
	case LoanSimulated, LoanRequested, LoanApproved, LoanActive,
		LoanCompleted, LoanRejected, LoanPrecancelled:
		return true
	}
	return false
}

// Terminal reports whether no further events apply.
func (s LoanState) Terminal() bool {
	return s == LoanCompleted || s == LoanRejected || s == LoanPrecancelled
}
