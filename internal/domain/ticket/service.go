package ticket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/txn"
)

// Handler applies a resolution to the subject of a ticket. Apply runs inside
// the same transaction as the ticket update, so returning an error discards
// both the subject mutation and the ticket resolution.
type Handler interface {
	Apply(ctx context.Context, t *Ticket, action Action) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, t *Ticket, action Action) error

// Apply calls f.
func (f HandlerFunc) Apply(ctx context.Context, t *Ticket, action Action) error {
	return f(ctx, t, action)
}

// Service opens and resolves tickets.
type Service struct {
	tx       txn.Transactor
	repo     Repository
	handlers map[Type]Handler
	now      func() time.Time
}

// NewService creates a ticket Service. Handlers for each ticket type must be
// registered with Register before tickets of that type can be resolved.
func NewService(tx txn.Transactor, repo Repository) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		handlers: make(map[Type]Handler),
		now:      time.Now,
	}
}

// Register sets the resolution handler for typ, replacing any previous one.
func (s *Service) Register(typ Type, h Handler) {
	s.handlers[typ] = h
}

// Open creates an open ticket for d. When ctx already carries a transaction
// the ticket is written as part of it.
func (s *Service) Open(ctx context.Context, createdBy string, d Details) (*Ticket, error) {
	if d == nil || d.SubjectID() == "" {
		return nil, errors.New("ticket details must reference a subject")
	}
	t := &Ticket{
		ID:          uuid.NewString(),
		Details:     d,
		Status:      StatusOpen,
		CreatedByID: createdBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, t)
	}); err != nil {
		if errors.Is(err, ErrAlreadyOpen) {
			return nil, ErrAlreadyOpen
		}
		return nil, errors.Wrap(err, "create ticket")
	}

	zctx.From(ctx).Info("Ticket opened",
		zap.String("ticket_id", t.ID),
		zap.String("type", string(d.Type())),
		zap.String("subject_id", d.SubjectID()),
	)
	return t, nil
}

// Resolve applies action to the open ticket id, which must be of type
// expected. The subject mutation and the ticket update commit together.
func (s *Service) Resolve(ctx context.Context, expected Type, id string, action Action, resolverID string) (*Ticket, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	h, ok := s.handlers[expected]
	if !ok {
		return nil, errors.Errorf("no handler registered for ticket type %q", expected)
	}

	var resolved *Ticket
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusOpen {
			return ErrAlreadyResolved
		}
		if t.Type() != expected {
			return ErrTypeMismatch
		}

		if err := h.Apply(ctx, t, action); err != nil {
			return err
		}

		at := s.now().UTC()
		ok, err := s.repo.Resolve(ctx, t.ID, action.Status(), resolverID, at)
		if err != nil {
			return errors.Wrap(err, "update ticket")
		}
		if !ok {
			return ErrAlreadyResolved
		}

		t.Status = action.Status()
		t.AssignedToID = resolverID
		t.ResolvedAt = &at
		resolved = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Ticket resolved",
		zap.String("ticket_id", resolved.ID),
		zap.String("type", string(expected)),
		zap.String("status", string(resolved.Status)),
		zap.String("resolver_id", resolverID),
	)
	return resolved, nil
}

// ResolveCoupon resolves a coupon approval ticket.
func (s *Service) ResolveCoupon(ctx context.Context, id string, action Action, resolverID string) (*Ticket, error) {
	return s.Resolve(ctx, TypeCouponApproval, id, action, resolverID)
}

// ResolveRefund resolves a refund request ticket.
func (s *Service) ResolveRefund(ctx context.Context, id string, action Action, resolverID string) (*Ticket, error) {
	return s.Resolve(ctx, TypeRefundRequest, id, action, resolverID)
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.repo.Get(ctx, id)
}

// ListOpen returns open tickets, optionally restricted to one type.
func (s *Service) ListOpen(ctx context.Context, typ Type) ([]Ticket, error) {
	tickets, err := s.repo.ListOpen(ctx, typ)
	if err != nil {
		return nil, errors.Wrap(err, "list open tickets")
	}
	return tickets, nil
}
