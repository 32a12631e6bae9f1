package order

import "fmt"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusDispatched Status = "Dispatched"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusReturned   Status = "Returned"
	StatusRefunded   Status = "Refunded"
)

// managerTransitions lists the moves a manager may make through UpdateStatus.
// Delivered -> Returned is reserved for the owning customer and
// Returned -> Refunded for refund ticket approval.
var managerTransitions = map[Status][]Status{
	StatusProcessing: {StatusDispatched, StatusCancelled, StatusReturned},
	StatusDispatched: {StatusDelivered, StatusCancelled},
}

// Settable reports whether s is a status UpdateStatus accepts as a target.
func (s Status) Settable() bool {
	switch s {
	case StatusProcessing, StatusDispatched, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a manager may move an order from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, s := range managerTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a move the order state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
