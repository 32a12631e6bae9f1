// Package txn defines the unit-of-work boundary shared by the domain services.
package txn

import "context"

// Transactor runs fn inside a single storage transaction. Repositories called
// with the context handed to fn take part in that transaction. Calling InTx
// with a context that already carries a transaction joins it instead of
// opening a new one.
//
// If fn returns an error, every write made through the context is discarded
// and the error is returned unchanged.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
