package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// In-memory LedgerStore with optional write-failure injection.
type memLedgerStore struct {
	mu         sync.Mutex
	aggregates map[string]int
	audit      map[string]domain.AuditLogEntry
	auditSeq   []string

	failGroupPuts  int // fail this many group-scope puts, then succeed
	failHolderPuts int // fail this many holder-scope puts, then succeed
	failAppends    int // fail this many audit appends, then succeed
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		aggregates: make(map[string]int),
		audit:      make(map[string]domain.AuditLogEntry),
	}
}

func aggKey(scope, itemID string, quality domain.Quality) string {
	return fmt.Sprintf("%s|%s|%s", scope, itemID, quality)
}

func (m *memLedgerStore) GetAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.aggregates[aggKey(scope, itemID, quality)]
	return qty, ok, nil
}

func (m *memLedgerStore) PutAggregateRow(ctx context.Context, scope, itemID string, quality domain.Quality, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if scope == domain.ScopeGroup && m.failGroupPuts > 0 {
		m.failGroupPuts--
		return errors.New("injected group put failure")
	}
	if scope != domain.ScopeGroup && m.failHolderPuts > 0 {
		m.failHolderPuts--
		return errors.New("injected holder put failure")
	}
	m.aggregates[aggKey(scope, itemID, quality)] = qty
	return nil
}

func (m *memLedgerStore) ListAggregateRows(ctx context.Context, scope string) (map[domain.InventoryKey]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.InventoryKey]int)
	for key, qty := range m.aggregates {
		parts := strings.SplitN(key, "|", 3)
		if parts[0] != scope || qty <= 0 {
			continue
		}
		out[domain.InventoryKey{ItemID: parts[1], Quality: domain.Quality(parts[2])}] = qty
	}
	return out, nil
}

func (m *memLedgerStore) GetAuditRow(ctx context.Context, transactionID string) (*domain.AuditLogEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.audit[transactionID]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *memLedgerStore) AppendAuditRow(ctx context.Context, e domain.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppends > 0 {
		m.failAppends--
		return errors.New("injected audit append failure")
	}
	m.audit[e.TransactionID] = e
	m.auditSeq = append(m.auditSeq, e.TransactionID)
	return nil
}

func (m *memLedgerStore) ListAuditRows(ctx context.Context, actorID string, since time.Time) ([]domain.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditLogEntry
	for _, id := range m.auditSeq {
		e := m.audit[id]
		if actorID != "" && e.ActorID != actorID {
			continue
		}
		if e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memLedgerStore) qty(scope, itemID string, quality domain.Quality) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregates[aggKey(scope, itemID, quality)]
}

// In-memory SessionStore. TTLs are recorded but only enforced through
// expireNow, so tests control the clock.
type memSessionStore struct {
	mu         sync.Mutex
	sessions   map[string]domain.ConfirmationSession
	actorSlots map[string]string
	auditLines map[string][]domain.ItemLine

	failPuts int // fail this many session puts, then succeed
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions:   make(map[string]domain.ConfirmationSession),
		actorSlots: make(map[string]string),
		auditLines: make(map[string][]domain.ItemLine),
	}
}

func (m *memSessionStore) PutSession(ctx context.Context, s domain.ConfirmationSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts > 0 {
		m.failPuts--
		return errors.New("injected session put failure")
	}
	m.sessions[s.ID] = s
	m.actorSlots[s.ActorID] = s.ID
	return nil
}

func (m *memSessionStore) GetSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (m *memSessionStore) GetActorSession(ctx context.Context, actorID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.actorSlots[actorID]
	if !ok {
		return "", false, nil
	}
	if _, live := m.sessions[id]; !live {
		delete(m.actorSlots, actorID)
		return "", false, nil
	}
	return id, true, nil
}

func (m *memSessionStore) ClaimSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	delete(m.sessions, sessionID)
	delete(m.actorSlots, s.ActorID)
	return &s, true, nil
}

func (m *memSessionStore) DeleteSession(ctx context.Context, sessionID, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.actorSlots, actorID)
	return nil
}

func (m *memSessionStore) AppendAuditLines(ctx context.Context, actorID string, lines []domain.ItemLine, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLines[actorID] = append(m.auditLines[actorID], lines...)
	return nil
}

func (m *memSessionStore) ClaimAuditLines(ctx context.Context, actorID string) ([]domain.ItemLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.auditLines[actorID]
	delete(m.auditLines, actorID)
	return lines, nil
}

// expireNow simulates TTL expiry of a session.
func (m *memSessionStore) expireNow(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		delete(m.actorSlots, s.ActorID)
	}
}

// Stub extractor returning canned spans.
type stubExtractor struct {
	spans []domain.Span
	err   error
}

func (s *stubExtractor) Extract(ctx context.Context, image []byte) ([]domain.Span, error) {
	return s.spans, s.err
}

func testCatalog() *Catalog {
	c, err := NewCatalog([]domain.Item{
		{ID: "iron-ore", DisplayName: "Iron Ore", Qualities: []domain.Quality{
			domain.QualityCommon, domain.QualityUncommon, domain.QualityRare,
			domain.QualityHeroic, domain.QualityEpic, domain.QualityLegendary,
		}},
		{ID: "oak-wood", DisplayName: "Oak Wood", Qualities: []domain.Quality{
			domain.QualityCommon, domain.QualityUncommon, domain.QualityRare,
			domain.QualityHeroic, domain.QualityEpic, domain.QualityLegendary,
		}},
		{ID: "oak-timber", DisplayName: "Oak Timber", Qualities: []domain.Quality{
			domain.QualityCommon, domain.QualityUncommon, domain.QualityRare,
		}},
		{ID: "daffodil", DisplayName: "Daffodil", Qualities: []domain.Quality{
			domain.QualityCommon, domain.QualityUncommon, domain.QualityRare,
		}},
	}, 0.82, 0.55)
	if err != nil {
		panic(err)
	}
	return c
}
