package port

import (
	"context"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// SessionStore keeps per-actor interaction state with a TTL: confirmation
// sessions and in-flight audit chunk collections. Expiry is the store's
// job — a session that outlived its TTL simply reads as absent.
type SessionStore interface {
	// PutSession stores a session under both its id and its actor slot,
	// resetting the idle TTL.
	PutSession(ctx context.Context, s domain.ConfirmationSession, ttl time.Duration) error

	// GetSession reads a session by id. Expired sessions report ok=false.
	GetSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error)

	// GetActorSession returns the live session id for an actor, if any.
	GetActorSession(ctx context.Context, actorID string) (string, bool, error)

	// ClaimSession atomically fetches and removes a session, so that two
	// concurrent confirms can never both obtain it.
	ClaimSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error)

	// DeleteSession removes a session and its actor slot.
	DeleteSession(ctx context.Context, sessionID, actorID string) error

	// AppendAuditLines adds one chunk to an actor's pending audit
	// collection, resetting the collection TTL.
	AppendAuditLines(ctx context.Context, actorID string, lines []domain.ItemLine, ttl time.Duration) error

	// ClaimAuditLines atomically fetches and clears every chunk submitted
	// so far for an actor. An expired or empty collection returns nil.
	ClaimAuditLines(ctx context.Context, actorID string) ([]domain.ItemLine, error)
}
