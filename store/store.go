// Package store defines the persistence boundary for streampass.
package store

import (
	"context"

	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/tier"
)

// Tx is the set of operations available inside a transaction. A Store
// also satisfies Tx directly; each such call is its own transaction.
type Tx interface {
	pass.Store
	tier.Store
}

// Store is the unified storage interface.
type Store interface {
	Tx

	// Atomic runs fn in one transaction. Any error from fn rolls back every
	// write made through tx.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn against a consistent read snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
