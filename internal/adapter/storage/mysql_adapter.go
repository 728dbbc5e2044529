package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// MySQLAdapter implements port.LedgerStore. Every method is a single
// statement and the adapter never opens a multi-statement transaction;
// write ordering and atomicity are the ledger service's responsibility.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality) (int, bool, error) {
	var qty int
	err := m.db.QueryRowContext(ctx, `
		SELECT qty FROM aggregates
		WHERE scope = ? AND item_id = ? AND quality = ?`,
		scope, itemID, string(quality),
	).Scan(&qty)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query aggregate: %w", err)
	}
	return qty, true, nil
}

func (m *MySQLAdapter) PutAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality, qty int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO aggregates (scope, item_id, quality, qty, updated_at)
		VALUES (?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE qty = VALUES(qty), updated_at = NOW()`,
		scope, itemID, string(quality), qty,
	)
	if err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListAggregateRows(ctx context.Context, scope string) (map[domain.InventoryKey]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, quality, qty FROM aggregates
		WHERE scope = ? AND qty > 0`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.InventoryKey]int)
	for rows.Next() {
		var itemID, quality string
		var qty int
		if err := rows.Scan(&itemID, &quality, &qty); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out[domain.InventoryKey{ItemID: itemID, Quality: domain.Quality(quality)}] = qty
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) GetAuditRow(ctx context.Context, transactionID string) (*domain.AuditLogEntry, bool, error) {
	var e domain.AuditLogEntry
	var quality, origin string
	err := m.db.QueryRowContext(ctx, `
		SELECT transaction_id, actor_id, item_id, quality, quantity_delta, origin,
		       before_holder, after_holder, before_group, after_group, created_at
		FROM audit_log WHERE transaction_id = ?`,
		transactionID,
	).Scan(
		&e.TransactionID, &e.ActorID, &e.ItemID, &quality, &e.QuantityDelta, &origin,
		&e.BeforeHolder, &e.AfterHolder, &e.BeforeGroup, &e.AfterGroup, &e.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query audit entry: %w", err)
	}
	e.Quality = domain.Quality(quality)
	e.Origin = domain.Origin(origin)
	return &e, true, nil
}

func (m *MySQLAdapter) AppendAuditRow(ctx context.Context, e domain.AuditLogEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(transaction_id, actor_id, item_id, quality, quantity_delta, origin,
			 before_holder, after_holder, before_group, after_group, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransactionID, e.ActorID, e.ItemID, string(e.Quality), e.QuantityDelta, string(e.Origin),
		e.BeforeHolder, e.AfterHolder, e.BeforeGroup, e.AfterGroup, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListAuditRows(ctx context.Context, actorID string, since time.Time) ([]domain.AuditLogEntry, error) {
	query := `
		SELECT transaction_id, actor_id, item_id, quality, quantity_delta, origin,
		       before_holder, after_holder, before_group, after_group, created_at
		FROM audit_log
		WHERE created_at >= ?`
	args := []interface{}{since}
	if actorID != "" {
		query += " AND actor_id = ?"
		args = append(args, actorID)
	}
	query += " ORDER BY created_at"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var quality, origin string
		if err := rows.Scan(
			&e.TransactionID, &e.ActorID, &e.ItemID, &quality, &e.QuantityDelta, &origin,
			&e.BeforeHolder, &e.AfterHolder, &e.BeforeGroup, &e.AfterGroup, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Quality = domain.Quality(quality)
		e.Origin = domain.Origin(origin)
		out = append(out, e)
	}
	return out, rows.Err()
}
