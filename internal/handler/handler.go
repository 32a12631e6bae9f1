// Package handler exposes the order, coupon and ticket services over HTTP.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/ticket"
)

// OrderService is the subset of order.Service used by the handlers.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	History(ctx context.Context, customerID string) ([]order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error)
	RequestReturn(ctx context.Context, customerID, id string) (*order.Order, error)
	RaiseRefundTicket(ctx context.Context, raisedBy, id string) (*ticket.Ticket, error)
}

// CouponService is the subset of coupon.Service used by the handlers.
type CouponService interface {
	Create(ctx context.Context, req coupon.CreateRequest) (*coupon.Coupon, *ticket.Ticket, error)
}

// TicketService is the subset of ticket.Service used by the handlers.
type TicketService interface {
	ListOpen(ctx context.Context, typ ticket.Type) ([]ticket.Ticket, error)
	ResolveCoupon(ctx context.Context, id string, action ticket.Action, resolverID string) (*ticket.Ticket, error)
	ResolveRefund(ctx context.Context, id string, action ticket.Action, resolverID string) (*ticket.Ticket, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	orders  OrderService
	coupons CouponService
	tickets TicketService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, coupons CouponService, tickets TicketService) *Handler {
	return &Handler{
		orders:  orders,
		coupons: coupons,
		tickets: tickets,
	}
}

// Routes mounts every API route on r. All of them require an API key; role
// checks are applied per route.
func (h *Handler) Routes(r chi.Router, keys *auth.KeyResolver) {
	managers := RequireRole(auth.RoleAdmin, auth.RoleOrderManager)
	finance := RequireRole(auth.RoleAdmin, auth.RoleFinanceManager)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(keys))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.OrderHistory)
			r.With(managers).Get("/all", h.ListOrders)
			r.With(managers).Get("/{id}", h.GetOrder)
			r.With(managers).Patch("/{id}/status", h.UpdateOrderStatus)
			r.Post("/{id}/return-request", h.RequestReturn)
			r.With(managers).Post("/{id}/raise-refund", h.RaiseRefund)
		})

		r.With(RequireRole(auth.RoleAdmin, auth.RoleProductManager)).Post("/coupons", h.CreateCoupon)

		r.Route("/tickets", func(r chi.Router) {
			r.With(RequireRole(auth.RoleAdmin)).Get("/", h.ListTickets)
			r.With(finance).Get("/refunds", h.ListRefundTickets)
			r.With(RequireRole(auth.RoleAdmin)).Patch("/coupon/{id}", h.ResolveCouponTicket)
			r.With(finance).Patch("/refund/{id}", h.ResolveRefundTicket)
		})
	})
}
