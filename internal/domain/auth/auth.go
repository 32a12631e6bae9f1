// Package auth describes the authenticated principal that every operation
// runs on behalf of.
package auth

import "context"

// Role is the coarse permission group of an actor.
type Role string

const (
	RoleAdmin          Role = "Admin"
	RoleProductManager Role = "Product Manager"
	RoleOrderManager   Role = "Order Manager"
	RoleFinanceManager Role = "Finance Manager"
	RoleCustomer       Role = "Customer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProductManager, RoleOrderManager, RoleFinanceManager, RoleCustomer:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// HasRole reports whether the actor holds any of the given roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom extracts the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
