// Package ticket implements generic approval work items. A ticket references
// a subject entity by id inside its details and, when resolved, hands the
// decision to the Handler registered for its type.
package ticket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type identifies the workflow a ticket belongs to.
type Type string

const (
	TypeCouponApproval Type = "Coupon Approval"
	TypeRefundRequest  Type = "Refund Request"
)

// Status is the resolution state of a ticket.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusApproved Status = "Approved"
	StatusDenied   Status = "Denied"
)

// Action is the resolver's decision.
type Action string

const (
	ActionApproved Action = "Approved"
	ActionDenied   Action = "Denied"
)

// Valid reports whether a is a decision a resolver may take.
func (a Action) Valid() bool {
	return a == ActionApproved || a == ActionDenied
}

// Status returns the ticket status a resolution with this action produces.
func (a Action) Status() Status {
	if a == ActionApproved {
		return StatusApproved
	}
	return StatusDenied
}

var (
	// ErrNotFound is returned when no ticket has the requested id.
	ErrNotFound = errors.New("ticket not found")
	// ErrAlreadyResolved is returned when resolving a ticket that is not open.
	ErrAlreadyResolved = errors.New("ticket already resolved")
	// ErrTypeMismatch is returned when a ticket is resolved through the
	// endpoint of a different ticket type.
	ErrTypeMismatch = errors.New("ticket type mismatch")
	// ErrSubjectNotFound is returned when the entity a ticket references no
	// longer exists.
	ErrSubjectNotFound = errors.New("ticket subject not found")
	// ErrInvalidAction is returned for actions other than Approved or Denied.
	ErrInvalidAction = errors.New(`action must be "Approved" or "Denied"`)
	// ErrAlreadyOpen is returned when a subject already has an open ticket of
	// the same type.
	ErrAlreadyOpen = errors.New("an open ticket already exists for this subject")
)

// Details is the type-specific payload of a ticket. The set of
// implementations is closed to this package.
type Details interface {
	// Type returns the ticket type this payload belongs to.
	Type() Type
	// SubjectID returns the id of the referenced entity.
	SubjectID() string

	isDetails()
}

// CouponApproval asks for a newly created coupon to be activated.
type CouponApproval struct {
	CouponID   string
	CouponCode string
	Message    string
}

func (CouponApproval) Type() Type          { return TypeCouponApproval }
func (d CouponApproval) SubjectID() string { return d.CouponID }
func (CouponApproval) isDetails()          {}

// RefundRequest asks for a returned order to be refunded. The amount is a
// snapshot taken when the ticket was raised.
type RefundRequest struct {
	OrderID     string
	CustomerID  string
	TotalAmount decimal.Decimal
	Message     string
}

func (RefundRequest) Type() Type          { return TypeRefundRequest }
func (d RefundRequest) SubjectID() string { return d.OrderID }
func (RefundRequest) isDetails()          {}

// Ticket is an approval work item.
type Ticket struct {
	ID           string
	Details      Details
	Status       Status
	CreatedByID  string
	AssignedToID string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// Type returns the ticket type derived from its details.
func (t *Ticket) Type() Type {
	if t.Details == nil {
		return ""
	}
	return t.Details.Type()
}

// Repository defines persistence operations for tickets.
type Repository interface {
	// Create inserts an open ticket. It returns ErrAlreadyOpen when the
	// subject already has an open ticket of the same type.
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	// GetForUpdate loads the ticket and locks it for the rest of the
	// surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Ticket, error)
	// Resolve moves an open ticket to status. It reports false when the
	// ticket was no longer open.
	Resolve(ctx context.Context, id string, status Status, resolverID string, at time.Time) (bool, error)
	// ListOpen returns open tickets oldest first. An empty typ lists all types.
	ListOpen(ctx context.Context, typ Type) ([]Ticket, error)
}
