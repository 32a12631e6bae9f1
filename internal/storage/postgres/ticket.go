package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/ticket"
)

const (
	ticketColumns = `id, ticket_type, details, status, created_by_id, assigned_to_id, created_at, resolved_at`

	insertTicketSQL = `INSERT INTO tickets (id, ticket_type, subject_id, details, status, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getTicketSQL          = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	getTicketForUpdateSQL = getTicketSQL + ` FOR UPDATE`

	resolveTicketSQL = `UPDATE tickets SET status = $2, assigned_to_id = $3, resolved_at = $4
		WHERE id = $1 AND status = 'Open'`

	listOpenTicketsSQL = `SELECT ` + ticketColumns + ` FROM tickets
		WHERE status = 'Open' AND ($1::text = '' OR ticket_type = $1)
		ORDER BY created_at, id`

	openSubjectIndex = "tickets_open_subject_idx"
)

var _ ticket.Repository = (*TicketRepository)(nil)

// TicketRepository implements ticket.Repository backed by PostgreSQL. The
// typed details are stored as JSONB.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository returns a TicketRepository that uses the given pool.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	details, err := ticket.MarshalDetails(t.Details)
	if err != nil {
		return errors.Wrap(err, "marshal ticket details")
	}
	_, err = conn(ctx, r.pool).Exec(ctx, insertTicketSQL,
		t.ID, string(t.Type()), t.Details.SubjectID(), details, string(t.Status), t.CreatedByID, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, openSubjectIndex) {
			return ticket.ErrAlreadyOpen
		}
		return errors.Wrapf(err, "insert ticket %q", t.ID)
	}
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	return r.findOne(ctx, getTicketSQL, id)
}

// GetForUpdate locks the ticket row until the surrounding transaction ends.
func (r *TicketRepository) GetForUpdate(ctx context.Context, id string) (*ticket.Ticket, error) {
	return r.findOne(ctx, getTicketForUpdateSQL, id)
}

func (r *TicketRepository) Resolve(ctx context.Context, id string, status ticket.Status, resolverID string, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, resolveTicketSQL, id, string(status), resolverID, at)
	if err != nil {
		return false, errors.Wrapf(err, "resolve ticket %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TicketRepository) ListOpen(ctx context.Context, typ ticket.Type) ([]ticket.Ticket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOpenTicketsSQL, string(typ))
	if err != nil {
		return nil, errors.Wrap(err, "query open tickets")
	}
	tickets, err := pgx.CollectRows(rows, scanTicket)
	if err != nil {
		return nil, errors.Wrap(err, "scan tickets")
	}
	return tickets, nil
}

func (r *TicketRepository) findOne(ctx context.Context, query, id string) (*ticket.Ticket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "query ticket")
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan ticket")
	}
	return &t, nil
}

func scanTicket(row pgx.CollectableRow) (ticket.Ticket, error) {
	var (
		t          ticket.Ticket
		typ        string
		details    []byte
		status     string
		assignedTo *string
	)
	if err := row.Scan(&t.ID, &typ, &details, &status, &t.CreatedByID, &assignedTo, &t.CreatedAt, &t.ResolvedAt); err != nil {
		return t, err
	}
	d, err := ticket.UnmarshalDetails(ticket.Type(typ), details)
	if err != nil {
		return t, errors.Wrapf(err, "decode details of ticket %q", t.ID)
	}
	t.Details = d
	t.Status = ticket.Status(status)
	if assignedTo != nil {
		t.AssignedToID = *assignedTo
	}
	return t, nil
}
