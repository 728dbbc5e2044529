package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
	"github.com/ptdat/guild-bank/internal/port"
)

var (
	ErrExtractionFailed    = errors.New("image produced no usable text")
	ErrSessionPending      = errors.New("actor already has a pending session")
	ErrSessionExpired      = errors.New("session expired or does not exist")
	ErrInvalidFieldValue   = errors.New("invalid field value")
	ErrIncompleteCandidate = errors.New("candidate has unresolved fields")
)

// SessionService drives the confirmation state machine: one live session
// per actor, edit/confirm/cancel transitions, expiry by store TTL, and a
// confirm that reaches the ledger at most once per candidate.
type SessionService struct {
	extractor port.Extractor
	store     port.SessionStore
	parser    *Parser
	catalog   *Catalog
	ledger    *LedgerService
	idleTTL   time.Duration
	log       *logger.Logger
}

func NewSessionService(
	extractor port.Extractor,
	store port.SessionStore,
	parser *Parser,
	catalog *Catalog,
	ledger *LedgerService,
	idleTTL time.Duration,
	log *logger.Logger,
) *SessionService {
	return &SessionService{
		extractor: extractor,
		store:     store,
		parser:    parser,
		catalog:   catalog,
		ledger:    ledger,
		idleTTL:   idleTTL,
		log:       log.With("component", "sessions"),
	}
}

// SubmitImage runs OCR over a donation screenshot and opens a confirmation
// session holding the parsed candidates. A new submission while the actor
// still has a live session is rejected, not replaced.
func (s *SessionService) SubmitImage(ctx context.Context, actorID string, image []byte) (*domain.ConfirmationSession, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id required", ErrInvalidFieldValue)
	}

	if _, live, err := s.store.GetActorSession(ctx, actorID); err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	} else if live {
		return nil, ErrSessionPending
	}

	spans, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(spans) == 0 {
		return nil, ErrExtractionFailed
	}

	candidates := s.parser.Parse(spans)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no donation regions recognized", ErrExtractionFailed)
	}
	// Each candidate gets its transaction id up front so a confirm retried
	// after a store hiccup replays the same id instead of minting a new one.
	for i := range candidates {
		candidates[i].TransactionID = uuid.NewString()
	}

	now := time.Now().UTC()
	sess := domain.ConfirmationSession{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Candidate: candidates[0],
		Queued:    candidates[1:],
		State:     domain.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.idleTTL),
	}
	if err := s.store.PutSession(ctx, sess, s.idleTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.log.Info("session opened",
		"session_id", sess.ID,
		"actor_id", actorID,
		"candidates", len(candidates),
	)
	return &sess, nil
}

// Edit updates one candidate field after validating it against its domain.
// A successful edit clears the field's review flag and refreshes the idle
// timer; a failed validation leaves the session untouched.
func (s *SessionService) Edit(ctx context.Context, sessionID, field, value string) (*domain.ConfirmationSession, error) {
	sess, ok, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return nil, ErrSessionExpired
	}

	cand := sess.Candidate
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "item":
		item, ok := s.catalog.Resolve(value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown item %q", ErrInvalidFieldValue, value)
		}
		cand.ItemID = item.ID
		cand.ItemConfidence = 1
		cand.NeedsItemReview = false
		if cand.Quality.Valid() && !item.Supports(cand.Quality) {
			cand.NeedsQualityReview = true
		}
	case "quantity":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: quantity must be a positive integer, got %q", ErrInvalidFieldValue, value)
		}
		cand.Quantity = n
		cand.NeedsQuantityInput = false
	case "quality":
		q, ok := domain.ParseQuality(value)
		if !ok {
			return nil, fmt.Errorf("%w: unknown quality %q", ErrInvalidFieldValue, value)
		}
		if cand.ItemID != "" {
			if item, found := s.catalog.ByID(cand.ItemID); found && !item.Supports(q) {
				return nil, fmt.Errorf("%w: %s does not come in %s", ErrInvalidFieldValue, item.DisplayName, q)
			}
		}
		cand.Quality = q
		cand.QualityConfidence = 1
		cand.NeedsQualityReview = false
	default:
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidFieldValue, field)
	}

	sess.Candidate = cand
	sess.State = domain.SessionEditing
	sess.ExpiresAt = time.Now().UTC().Add(s.idleTTL)
	if err := s.store.PutSession(ctx, *sess, s.idleTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Confirm finalizes the active candidate into exactly one donation
// transaction. The session is atomically claimed first, so a concurrent
// confirm on the same session finds it gone and reports expiry. When more
// candidates are queued the session re-opens on the next one.
func (s *SessionService) Confirm(ctx context.Context, sessionID string) (*domain.AuditLogEntry, *domain.ConfirmationSession, error) {
	sess, ok, err := s.store.ClaimSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return nil, nil, ErrSessionExpired
	}

	cand := sess.Candidate
	if !cand.Complete() {
		// hand the session back untouched so the actor can keep editing
		sess.ExpiresAt = time.Now().UTC().Add(s.idleTTL)
		if putErr := s.store.PutSession(ctx, *sess, s.idleTTL); putErr != nil {
			s.log.Error("restore session after incomplete confirm", "session_id", sess.ID, "error", putErr)
		}
		return nil, sess, ErrIncompleteCandidate
	}

	tx := domain.Transaction{
		ID:            cand.TransactionID,
		ActorID:       sess.ActorID,
		ItemID:        cand.ItemID,
		Quality:       cand.Quality,
		QuantityDelta: cand.Quantity,
		Origin:        domain.OriginDonation,
		CreatedAt:     time.Now().UTC(),
	}

	var entry *domain.AuditLogEntry
	if ticket := sess.PendingRepair; ticket != nil && ticket.TransactionID == tx.ID {
		// a previous confirm wrote the holder side only; finish that write
		// set instead of re-applying the delta
		entry, err = s.ledger.RepairFromSnapshot(ctx, tx, ticket.BeforeHolder, ticket.BeforeGroup)
	} else {
		entry, err = s.ledger.Apply(ctx, tx)
	}
	if err != nil {
		var partial *PartialApplyError
		if errors.As(err, &partial) {
			if repaired, repairErr := s.ledger.Repair(ctx, partial); repairErr == nil {
				entry, err = repaired, nil
			} else {
				// persist the snapshot so the retry repairs instead of
				// re-applying, surviving a process restart
				sess.PendingRepair = &domain.RepairTicket{
					TransactionID: tx.ID,
					BeforeHolder:  partial.BeforeHolder,
					BeforeGroup:   partial.BeforeGroup,
				}
			}
		}
		if err != nil {
			// ledger refused or the store is down: give the session back so
			// the confirm can be retried with the same transaction id
			sess.ExpiresAt = time.Now().UTC().Add(s.idleTTL)
			if putErr := s.store.PutSession(ctx, *sess, s.idleTTL); putErr != nil {
				s.log.Error("restore session after failed apply", "session_id", sess.ID, "error", putErr)
			}
			return nil, sess, err
		}
	}

	sess.PendingRepair = nil
	if len(sess.Queued) > 0 {
		next := *sess
		next.Candidate = sess.Queued[0]
		next.Queued = sess.Queued[1:]
		next.State = domain.SessionPending
		next.ExpiresAt = time.Now().UTC().Add(s.idleTTL)
		if err := s.store.PutSession(ctx, next, s.idleTTL); err != nil {
			// the confirmed entry is already applied; report the loss of the
			// queued remainder instead of swallowing it
			s.log.Error("advance session queue", "session_id", sess.ID, "error", err)
			return entry, nil, fmt.Errorf("advance session queue: %w", err)
		}
		return entry, &next, nil
	}

	sess.State = domain.SessionConfirmed
	s.log.Info("session confirmed", "session_id", sess.ID, "transaction_id", tx.ID)
	return entry, nil, nil
}

// Cancel discards the session with no ledger effect.
func (s *SessionService) Cancel(ctx context.Context, sessionID string) error {
	sess, ok, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return ErrSessionExpired
	}
	if err := s.store.DeleteSession(ctx, sess.ID, sess.ActorID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.log.Info("session cancelled", "session_id", sess.ID, "actor_id", sess.ActorID)
	return nil
}
