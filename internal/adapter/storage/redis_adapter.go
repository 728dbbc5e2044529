package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

const (
	sessionKeyPrefix   = "bank:session:"
	actorSlotKeyPrefix = "bank:actor:"
	auditKeyPrefix     = "bank:audit:"
)

// claimSessionScript atomically fetches and deletes a session so two
// concurrent confirms can never both obtain the payload.
var claimSessionScript = redis.NewScript(`
local payload = redis.call('GET', KEYS[1])
if not payload then
	return false
end
redis.call('DEL', KEYS[1])
return payload
`)

// claimAuditScript drains the staged audit chunks in one step.
var claimAuditScript = redis.NewScript(`
local lines = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return lines
`)

// RedisAdapter implements port.SessionStore. Sessions live under their id
// with the actor slot pointing at it; both keys carry the idle TTL, so
// expiry is simply the keys vanishing.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) PutSession(ctx context.Context, s domain.ConfirmationSession, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+s.ID, payload, ttl).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, actorSlotKeyPrefix+s.ActorID, s.ID, ttl).Err()
}

func (r *RedisAdapter) GetSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error) {
	payload, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s domain.ConfirmationSession
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, false, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, true, nil
}

func (r *RedisAdapter) GetActorSession(ctx context.Context, actorID string) (string, bool, error) {
	sessionID, err := r.client.Get(ctx, actorSlotKeyPrefix+actorID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// the slot can outlive a claimed session briefly; treat a dangling
	// pointer as no session
	exists, err := r.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return "", false, err
	}
	if exists == 0 {
		_ = r.client.Del(ctx, actorSlotKeyPrefix+actorID).Err()
		return "", false, nil
	}
	return sessionID, true, nil
}

func (r *RedisAdapter) ClaimSession(ctx context.Context, sessionID string) (*domain.ConfirmationSession, bool, error) {
	res, err := claimSessionScript.Run(ctx, r.client, []string{sessionKeyPrefix + sessionID}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	payload, ok := res.(string)
	if !ok {
		return nil, false, nil
	}
	var s domain.ConfirmationSession
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, false, fmt.Errorf("unmarshal session: %w", err)
	}
	_ = r.client.Del(ctx, actorSlotKeyPrefix+s.ActorID).Err()
	return &s, true, nil
}

func (r *RedisAdapter) DeleteSession(ctx context.Context, sessionID, actorID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sessionID, actorSlotKeyPrefix+actorID).Err()
}

func (r *RedisAdapter) AppendAuditLines(ctx context.Context, actorID string, lines []domain.ItemLine, ttl time.Duration) error {
	key := auditKeyPrefix + actorID
	payloads := make([]interface{}, 0, len(lines))
	for _, line := range lines {
		b, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshal audit line: %w", err)
		}
		payloads = append(payloads, b)
	}
	if err := r.client.RPush(ctx, key, payloads...).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisAdapter) ClaimAuditLines(ctx context.Context, actorID string) ([]domain.ItemLine, error) {
	res, err := claimAuditScript.Run(ctx, r.client, []string{auditKeyPrefix + actorID}).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	lines := make([]domain.ItemLine, 0, len(raw))
	for _, item := range raw {
		payload, ok := item.(string)
		if !ok {
			continue
		}
		var line domain.ItemLine
		if err := json.Unmarshal([]byte(payload), &line); err != nil {
			return nil, fmt.Errorf("unmarshal audit line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
