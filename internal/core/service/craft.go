package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
)

// CraftService logs crafting and processing actions against the ledger.
// Materials are always consumed; outputs are credited only for processing
// runs, matching how the bank treats pure crafting (the product leaves the
// bank with the artisan).
type CraftService struct {
	ledger  *LedgerService
	catalog *Catalog
	log     *logger.Logger
}

func NewCraftService(ledger *LedgerService, catalog *Catalog, log *logger.Logger) *CraftService {
	return &CraftService{ledger: ledger, catalog: catalog, log: log.With("component", "craft")}
}

// Craft consumes materials and, when processing, credits outputs. Material
// legs run first so an overdraw fails with NegativeInventory before any
// output is applied. Already-applied legs stay applied and are returned to
// the caller alongside the error.
func (s *CraftService) Craft(ctx context.Context, actorID string, materials, outputs []domain.ItemLine, processing bool) ([]domain.Transaction, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id required", ErrInvalidFieldValue)
	}
	if len(materials) == 0 {
		return nil, fmt.Errorf("%w: at least one material required", ErrInvalidFieldValue)
	}
	if err := s.validateLines(materials); err != nil {
		return nil, err
	}
	if err := s.validateLines(outputs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	applied := make([]domain.Transaction, 0, len(materials)+len(outputs))

	for _, line := range materials {
		tx := craftTx(actorID, line, -line.Quantity, domain.OriginCraftInput, now)
		if _, err := s.ledger.Apply(ctx, tx); err != nil {
			return applied, fmt.Errorf("consume %s (%s): %w", line.ItemID, line.Quality, err)
		}
		applied = append(applied, tx)
	}

	if processing {
		for _, line := range outputs {
			tx := craftTx(actorID, line, line.Quantity, domain.OriginCraftOutput, now)
			if _, err := s.ledger.Apply(ctx, tx); err != nil {
				return applied, fmt.Errorf("credit %s (%s): %w", line.ItemID, line.Quality, err)
			}
			applied = append(applied, tx)
		}
	}

	s.log.Info("craft applied",
		"actor_id", actorID,
		"materials", len(materials),
		"outputs", len(outputs),
		"processing", processing,
	)
	return applied, nil
}

func (s *CraftService) validateLines(lines []domain.ItemLine) error {
	for _, line := range lines {
		item, ok := s.catalog.ByID(line.ItemID)
		if !ok {
			return fmt.Errorf("%w: unknown item %q", ErrInvalidFieldValue, line.ItemID)
		}
		if !item.Supports(line.Quality) {
			return fmt.Errorf("%w: %s does not come in %s", ErrInvalidFieldValue, item.DisplayName, line.Quality)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidFieldValue)
		}
	}
	return nil
}

func craftTx(actorID string, line domain.ItemLine, delta int, origin domain.Origin, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:            uuid.NewString(),
		ActorID:       actorID,
		ItemID:        line.ItemID,
		Quality:       line.Quality,
		QuantityDelta: delta,
		Origin:        origin,
		CreatedAt:     at,
	}
}
