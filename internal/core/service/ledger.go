package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
	"github.com/ptdat/guild-bank/internal/port"
)

var (
	ErrNegativeInventory = errors.New("application would drive an aggregate below zero")
	ErrPartialApply      = errors.New("partial aggregate apply")
	ErrRepairPending     = errors.New("aggregate awaiting repair of an earlier transaction")
)

// PartialApplyError reports that the holder aggregate was written but the
// group aggregate or the audit entry was not. It carries everything Repair
// needs to finish the transaction under the same id.
type PartialApplyError struct {
	Tx           domain.Transaction
	BeforeHolder int
	BeforeGroup  int
	Cause        error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("partial apply of transaction %s: %v", e.Tx.ID, e.Cause)
}

func (e *PartialApplyError) Unwrap() error { return ErrPartialApply }

// LedgerService applies confirmed transactions to the holder and group
// aggregates and appends the audit entry. The backing store has no
// transactions, so the engine serializes writers per (item, quality) and
// uses the audit log as the applied-transaction index: an id with an audit
// entry is already applied and replays return the stored entry untouched.
//
// A partially applied transaction (holder written, group or audit not) is
// not yet in that index, so the key it touched is barred from new applies
// until the write set is finished: retries of the same id repair, other
// ids are refused with ErrRepairPending.
type LedgerService struct {
	store port.LedgerStore
	log   *logger.Logger

	mu      sync.Mutex
	locks   map[domain.InventoryKey]*sync.Mutex
	damaged map[domain.InventoryKey]*PartialApplyError
}

func NewLedgerService(store port.LedgerStore, log *logger.Logger) *LedgerService {
	return &LedgerService{
		store:   store,
		log:     log.With("component", "ledger"),
		locks:   make(map[domain.InventoryKey]*sync.Mutex),
		damaged: make(map[domain.InventoryKey]*PartialApplyError),
	}
}

// keyLock returns the single writer lock for one (item, quality) pair.
// Locks are never removed; the map is bounded by catalog size times the
// quality tier count.
func (s *LedgerService) keyLock(itemID string, quality domain.Quality) *sync.Mutex {
	key := domain.InventoryKey{ItemID: itemID, Quality: quality}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Apply applies one transaction exactly once. Write order: holder
// aggregate, group aggregate, audit entry. The audit entry is appended only
// after both aggregate writes succeed, so a present entry always describes
// a fully applied transaction.
func (s *LedgerService) Apply(ctx context.Context, tx domain.Transaction) (*domain.AuditLogEntry, error) {
	if tx.ID == "" || tx.ActorID == "" || tx.ItemID == "" || !tx.Quality.Valid() {
		return nil, fmt.Errorf("malformed transaction %+v", tx)
	}

	lock := s.keyLock(tx.ItemID, tx.Quality)
	lock.Lock()
	defer lock.Unlock()

	if entry, ok, err := s.store.GetAuditRow(ctx, tx.ID); err != nil {
		return nil, fmt.Errorf("applied-index lookup: %w", err)
	} else if ok {
		s.log.Debug("transaction replayed", "transaction_id", tx.ID)
		return entry, nil
	}

	key := domain.InventoryKey{ItemID: tx.ItemID, Quality: tx.Quality}
	if p := s.damagedPartial(key); p != nil {
		// an earlier apply on this key wrote the holder side only; a retry
		// of that id finishes the interrupted write set, anything else
		// waits so the repair's snapshot stays accurate
		if p.Tx.ID == tx.ID {
			return s.repairLocked(ctx, p.Tx, p.BeforeHolder, p.BeforeGroup)
		}
		return nil, fmt.Errorf("%w: transaction %s on %s %s", ErrRepairPending, p.Tx.ID, tx.ItemID, tx.Quality)
	}

	holder, _, err := s.store.GetAggregateRow(ctx, tx.ActorID, tx.ItemID, tx.Quality)
	if err != nil {
		return nil, fmt.Errorf("read holder aggregate: %w", err)
	}
	group, _, err := s.store.GetAggregateRow(ctx, domain.ScopeGroup, tx.ItemID, tx.Quality)
	if err != nil {
		return nil, fmt.Errorf("read group aggregate: %w", err)
	}

	newHolder := holder + tx.QuantityDelta
	newGroup := group + tx.QuantityDelta
	if newHolder < 0 || newGroup < 0 {
		return nil, fmt.Errorf("%w: %s %s %s holder %d group %d delta %d",
			ErrNegativeInventory, tx.ActorID, tx.ItemID, tx.Quality, holder, group, tx.QuantityDelta)
	}

	if err := s.store.PutAggregateRow(ctx, tx.ActorID, tx.ItemID, tx.Quality, newHolder); err != nil {
		// nothing written yet; aggregates are still consistent
		return nil, fmt.Errorf("write holder aggregate: %w", err)
	}

	if err := s.writeGroupAndAudit(ctx, tx, holder, group); err != nil {
		p := &PartialApplyError{Tx: tx, BeforeHolder: holder, BeforeGroup: group, Cause: err}
		s.setDamaged(key, p)
		return nil, p
	}

	entry := buildEntry(tx, holder, group)
	s.log.Info("transaction applied",
		"transaction_id", tx.ID,
		"actor_id", tx.ActorID,
		"item_id", tx.ItemID,
		"quality", tx.Quality,
		"delta", tx.QuantityDelta,
		"origin", tx.Origin,
	)
	return &entry, nil
}

func (s *LedgerService) writeGroupAndAudit(ctx context.Context, tx domain.Transaction, holder, group int) error {
	writeGroup := func() error {
		return s.store.PutAggregateRow(ctx, domain.ScopeGroup, tx.ItemID, tx.Quality, group+tx.QuantityDelta)
	}
	if err := writeGroup(); err != nil {
		// one immediate retry before declaring the apply partial
		if err = writeGroup(); err != nil {
			return fmt.Errorf("write group aggregate: %w", err)
		}
	}
	if err := s.store.AppendAuditRow(ctx, buildEntry(tx, holder, group)); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Repair finishes a partially applied transaction. Safe to call any number
// of times: it re-reads both aggregates, rewrites whichever side has not
// absorbed the delta yet, and appends the audit entry, all under the same
// transaction id and key lock.
func (s *LedgerService) Repair(ctx context.Context, p *PartialApplyError) (*domain.AuditLogEntry, error) {
	lock := s.keyLock(p.Tx.ItemID, p.Tx.Quality)
	lock.Lock()
	defer lock.Unlock()
	return s.repairLocked(ctx, p.Tx, p.BeforeHolder, p.BeforeGroup)
}

// RepairFromSnapshot is Repair for callers holding only the persisted
// before-values of a partial apply rather than the original error value —
// typically a confirm retried after a process restart.
func (s *LedgerService) RepairFromSnapshot(ctx context.Context, tx domain.Transaction, beforeHolder, beforeGroup int) (*domain.AuditLogEntry, error) {
	lock := s.keyLock(tx.ItemID, tx.Quality)
	lock.Lock()
	defer lock.Unlock()
	return s.repairLocked(ctx, tx, beforeHolder, beforeGroup)
}

func (s *LedgerService) repairLocked(ctx context.Context, tx domain.Transaction, beforeHolder, beforeGroup int) (*domain.AuditLogEntry, error) {
	key := domain.InventoryKey{ItemID: tx.ItemID, Quality: tx.Quality}

	if entry, ok, err := s.store.GetAuditRow(ctx, tx.ID); err != nil {
		return nil, fmt.Errorf("applied-index lookup: %w", err)
	} else if ok {
		s.clearDamaged(key)
		return entry, nil
	}

	// re-arm the guard so the key stays barred until this repair lands
	s.setDamaged(key, &PartialApplyError{Tx: tx, BeforeHolder: beforeHolder, BeforeGroup: beforeGroup})

	wantHolder := beforeHolder + tx.QuantityDelta
	wantGroup := beforeGroup + tx.QuantityDelta

	holder, _, err := s.store.GetAggregateRow(ctx, tx.ActorID, tx.ItemID, tx.Quality)
	if err != nil {
		return nil, fmt.Errorf("read holder aggregate: %w", err)
	}
	if holder != wantHolder {
		if err := s.store.PutAggregateRow(ctx, tx.ActorID, tx.ItemID, tx.Quality, wantHolder); err != nil {
			return nil, fmt.Errorf("repair holder aggregate: %w", err)
		}
	}

	group, _, err := s.store.GetAggregateRow(ctx, domain.ScopeGroup, tx.ItemID, tx.Quality)
	if err != nil {
		return nil, fmt.Errorf("read group aggregate: %w", err)
	}
	if group != wantGroup {
		if err := s.store.PutAggregateRow(ctx, domain.ScopeGroup, tx.ItemID, tx.Quality, wantGroup); err != nil {
			return nil, fmt.Errorf("repair group aggregate: %w", err)
		}
	}

	entry := buildEntry(tx, beforeHolder, beforeGroup)
	if err := s.store.AppendAuditRow(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	s.clearDamaged(key)
	s.log.Warn("transaction repaired", "transaction_id", tx.ID)
	return &entry, nil
}

func (s *LedgerService) damagedPartial(key domain.InventoryKey) *PartialApplyError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.damaged[key]
}

func (s *LedgerService) setDamaged(key domain.InventoryKey, p *PartialApplyError) {
	s.mu.Lock()
	s.damaged[key] = p
	s.mu.Unlock()
}

func (s *LedgerService) clearDamaged(key domain.InventoryKey) {
	s.mu.Lock()
	delete(s.damaged, key)
	s.mu.Unlock()
}

// GroupTotals returns the shared bank view.
func (s *LedgerService) GroupTotals(ctx context.Context) (map[domain.InventoryKey]int, error) {
	return s.store.ListAggregateRows(ctx, domain.ScopeGroup)
}

// HolderTotals returns one holder's recorded inventory.
func (s *LedgerService) HolderTotals(ctx context.Context, actorID string) (map[domain.InventoryKey]int, error) {
	return s.store.ListAggregateRows(ctx, actorID)
}

// HolderQuantity reads a single holder aggregate bucket.
func (s *LedgerService) HolderQuantity(ctx context.Context, actorID, itemID string, quality domain.Quality) (int, error) {
	qty, _, err := s.store.GetAggregateRow(ctx, actorID, itemID, quality)
	return qty, err
}

// AuditEntries returns applied-transaction history at or after the cutoff,
// optionally filtered to one actor.
func (s *LedgerService) AuditEntries(ctx context.Context, actorID string, since time.Time) ([]domain.AuditLogEntry, error) {
	return s.store.ListAuditRows(ctx, actorID, since)
}

func buildEntry(tx domain.Transaction, beforeHolder, beforeGroup int) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		TransactionID: tx.ID,
		ActorID:       tx.ActorID,
		ItemID:        tx.ItemID,
		Quality:       tx.Quality,
		QuantityDelta: tx.QuantityDelta,
		Origin:        tx.Origin,
		BeforeHolder:  beforeHolder,
		AfterHolder:   beforeHolder + tx.QuantityDelta,
		BeforeGroup:   beforeGroup,
		AfterGroup:    beforeGroup + tx.QuantityDelta,
		Timestamp:     tx.CreatedAt,
	}
}
