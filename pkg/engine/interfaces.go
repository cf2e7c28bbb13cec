package engine

import (
	"context"

	"github.com/geobuild/geobuild/pkg/stores"
	"github.com/geobuild/geobuild/pkg/updates"
)

// StateStore persists pass history and update-check timestamps across processes.
type StateStore interface {
	updates.ClaimStore

	// HealthCheck reports whether the store can serve queries.
	HealthCheck(ctx context.Context) error

	// CreatePass records the start of a pass.
	CreatePass(ctx context.Context, pass *stores.Pass) error

	// CompletePass marks a pass finished; kind and msg are empty on success.
	CompletePass(ctx context.Context, id string, status stores.PassStatus, kind, msg string) error

	// PrunePasses keeps the newest keep passes.
	PrunePasses(ctx context.Context, keep int) (int64, error)

	Close() error
}

// StoreOpener opens the state store at path.
type StoreOpener func(ctx context.Context, path string) (StateStore, error)

// OpenSQLite is the default StoreOpener.
func OpenSQLite(ctx context.Context, path string) (StateStore, error) {
	return stores.Open(ctx, stores.Config{Path: path})
}

var _ StateStore = (*stores.SQLiteStore)(nil)
