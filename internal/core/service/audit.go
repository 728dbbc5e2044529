package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
	"github.com/ptdat/guild-bank/internal/port"
)

var ErrNoAuditPending = errors.New("no audit chunks collected or collection expired")

// AuditService reconciles a holder's self-reported inventory against the
// ledger's record. Long reports arrive in chunks; chunks accumulate in the
// session store under the actor with their own TTL and are only turned into
// transactions at finalize.
type AuditService struct {
	store      port.SessionStore
	ledger     *LedgerService
	catalog    *Catalog
	collectTTL time.Duration
	log        *logger.Logger
}

func NewAuditService(store port.SessionStore, ledger *LedgerService, catalog *Catalog, collectTTL time.Duration, log *logger.Logger) *AuditService {
	return &AuditService{
		store:      store,
		ledger:     ledger,
		catalog:    catalog,
		collectTTL: collectTTL,
		log:        log.With("component", "audit"),
	}
}

// SubmitChunk validates and stages one batch of reported lines.
func (s *AuditService) SubmitChunk(ctx context.Context, actorID string, lines []domain.ItemLine) error {
	if actorID == "" {
		return fmt.Errorf("%w: actor id required", ErrInvalidFieldValue)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidFieldValue)
	}
	for _, line := range lines {
		item, ok := s.catalog.ByID(line.ItemID)
		if !ok {
			return fmt.Errorf("%w: unknown item %q", ErrInvalidFieldValue, line.ItemID)
		}
		if !item.Supports(line.Quality) {
			return fmt.Errorf("%w: %s does not come in %s", ErrInvalidFieldValue, item.DisplayName, line.Quality)
		}
		if line.Quantity < 0 {
			return fmt.Errorf("%w: reported quantity must be non-negative", ErrInvalidFieldValue)
		}
	}
	if err := s.store.AppendAuditLines(ctx, actorID, lines, s.collectTTL); err != nil {
		return fmt.Errorf("stage audit chunk: %w", err)
	}
	s.log.Debug("audit chunk staged", "actor_id", actorID, "lines", len(lines))
	return nil
}

// Finalize treats the union of all staged chunks as the actor's full
// report, computes one signed delta per reported line against the holder
// aggregate, and routes every non-zero delta through the ledger engine.
// A line reported twice across chunks is a correction: the later one wins.
func (s *AuditService) Finalize(ctx context.Context, actorID string) ([]domain.Transaction, error) {
	lines, err := s.store.ClaimAuditLines(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("collect audit chunks: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrNoAuditPending
	}

	reported := make(map[domain.InventoryKey]int, len(lines))
	order := make([]domain.InventoryKey, 0, len(lines))
	for _, line := range lines {
		key := domain.InventoryKey{ItemID: line.ItemID, Quality: line.Quality}
		if _, seen := reported[key]; !seen {
			order = append(order, key)
		}
		reported[key] = line.Quantity
	}

	now := time.Now().UTC()
	applied := make([]domain.Transaction, 0, len(order))
	for i, key := range order {
		current, err := s.ledger.HolderQuantity(ctx, actorID, key.ItemID, key.Quality)
		if err != nil {
			s.restage(ctx, actorID, order[i:], reported)
			return applied, fmt.Errorf("read holder aggregate: %w", err)
		}
		delta := reported[key] - current
		if delta == 0 {
			continue
		}

		tx := domain.Transaction{
			ID:            uuid.NewString(),
			ActorID:       actorID,
			ItemID:        key.ItemID,
			Quality:       key.Quality,
			QuantityDelta: delta,
			Origin:        domain.OriginAuditCorrection,
			CreatedAt:     now,
		}
		if _, err := s.ledger.Apply(ctx, tx); err != nil {
			s.restage(ctx, actorID, order[i:], reported)
			return applied, fmt.Errorf("apply audit correction %s: %w", tx.ID, err)
		}
		applied = append(applied, tx)
	}

	s.log.Info("audit finalized", "actor_id", actorID, "reported_lines", len(order), "corrections", len(applied))
	return applied, nil
}

// restage puts the not-yet-applied part of a claimed report back into the
// chunk store so a transient failure does not discard it; the next
// finalize recomputes the deltas against the then-current aggregates.
func (s *AuditService) restage(ctx context.Context, actorID string, keys []domain.InventoryKey, reported map[domain.InventoryKey]int) {
	lines := make([]domain.ItemLine, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, domain.ItemLine{ItemID: key.ItemID, Quality: key.Quality, Quantity: reported[key]})
	}
	if err := s.store.AppendAuditLines(ctx, actorID, lines, s.collectTTL); err != nil {
		s.log.Error("restage audit report", "actor_id", actorID, "lines", len(lines), "error", err)
	}
}
