package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// ListTickets lists every open ticket, optionally filtered by ?type=.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	h.listOpen(w, r, ticket.Type(r.URL.Query().Get("type")))
}

// ListRefundTickets lists open refund requests.
func (h *Handler) ListRefundTickets(w http.ResponseWriter, r *http.Request) {
	h.listOpen(w, r, ticket.TypeRefundRequest)
}

func (h *Handler) listOpen(w http.ResponseWriter, r *http.Request, typ ticket.Type) {
	tickets, err := h.tickets.ListOpen(r.Context(), typ)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTickets(e, tickets) })
}

// ResolveCouponTicket approves or denies a coupon.
func (h *Handler) ResolveCouponTicket(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.tickets.ResolveCoupon)
}

// ResolveRefundTicket approves or denies a refund.
func (h *Handler) ResolveRefundTicket(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.tickets.ResolveRefund)
}

type resolveFunc func(ctx context.Context, id string, action ticket.Action, resolverID string) (*ticket.Ticket, error)

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, resolve resolveFunc) {
	actor, _ := auth.ActorFrom(r.Context())

	var action string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "action" {
			return d.Skip()
		}
		var err error
		action, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	t, err := resolve(r.Context(), chi.URLParam(r, "id"), ticket.Action(action), actor.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTicket(e, t) })
}
