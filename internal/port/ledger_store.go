package port

import (
	"context"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// LedgerStore is the tabular persistence surface for aggregates and the
// audit log. Every method maps to a single-row get, upsert, or append; the
// store offers no multi-row transactions and no compare-and-swap, so all
// atomicity and write ordering above this interface belongs to the ledger
// service.
type LedgerStore interface {
	// GetAggregateRow reads one aggregate bucket. Absent rows report ok=false.
	GetAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality) (qty int, ok bool, err error)

	// PutAggregateRow upserts one aggregate bucket to an absolute value.
	PutAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality, qty int) error

	// ListAggregateRows returns every bucket under a scope.
	ListAggregateRows(ctx context.Context, scope string) (map[domain.InventoryKey]int, error)

	// GetAuditRow looks up the audit entry for a transaction id.
	GetAuditRow(ctx context.Context, transactionID string) (*domain.AuditLogEntry, bool, error)

	// AppendAuditRow appends one immutable audit entry.
	AppendAuditRow(ctx context.Context, entry domain.AuditLogEntry) error

	// ListAuditRows returns audit entries at or after the cutoff, newest
	// last, optionally filtered to one actor (empty actorID means all).
	ListAuditRows(ctx context.Context, actorID string, since time.Time) ([]domain.AuditLogEntry, error)
}
