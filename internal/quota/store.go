package quota

import (
	"context"
	"time"
)

// Store is the transactional counter store backing the gate.
//
// RunTransaction runs fn once against the record at key. Writes buffered
// with Tx.Set are committed atomically after fn returns nil. If another
// writer changed the record in the meantime, nothing is written and an
// error matching ErrConflict is returned.
type Store interface {
	RunTransaction(ctx context.Context, key Key, fn TxFunc) error
}

// TxFunc is the body of a store transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx gives a transaction body access to a single record.
type Tx interface {
	// Get returns the current record, or a zero Record when none exists.
	Get(ctx context.Context) (Record, error)
	// Set buffers rec to be written when the transaction commits.
	Set(rec Record)
	// Now returns the store's notion of the current time.
	Now(ctx context.Context) (time.Time, error)
}

// Notifier receives denied decisions after the transaction has settled,
// outside the request path.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
