package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

// redisOutcome is the stored form of a decryption outcome
type redisOutcome struct {
	RequestID  string    `json:"request_id"`
	Status     string    `json:"status"`
	Type       string    `json:"type,omitempty"`
	Value      string    `json:"value,omitempty"`
	ErrKind    string    `json:"err_kind,omitempty"`
	ErrCode    string    `json:"err_code,omitempty"`
	ErrMessage string    `json:"err_message,omitempty"`
	SettledAt  time.Time `json:"settled_at"`
}

// RedisStore is a Redis implementation of the ResultStore interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) ports.ResultStore {
	return &RedisStore{
		client: client,
		prefix: "fhevm:decryption:",
	}
}

// SaveOutcome stores a settled decryption with expiration
func (s *RedisStore) SaveOutcome(ctx context.Context, outcome core.DecryptionOutcome, ttl time.Duration) error {
	key := s.prefix + outcome.RequestID

	record := redisOutcome{
		RequestID:  outcome.RequestID,
		Status:     string(outcome.Status),
		ErrKind:    string(outcome.ErrKind),
		ErrCode:    outcome.ErrCode,
		ErrMessage: outcome.ErrMessage,
		SettledAt:  outcome.SettledAt,
	}
	if outcome.Result != nil {
		record.Type = string(outcome.Result.Type)
		if outcome.Result.Value != nil {
			record.Value = outcome.Result.Value.Dec()
		}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	return nil
}

// LoadOutcome reads an archived outcome from Redis
func (s *RedisStore) LoadOutcome(ctx context.Context, requestID string) (*core.DecryptionOutcome, bool, error) {
	key := s.prefix + requestID

	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load outcome: %w", err)
	}

	var record redisOutcome
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	outcome := &core.DecryptionOutcome{
		RequestID:  record.RequestID,
		Status:     core.DecryptionStatus(record.Status),
		ErrKind:    core.Kind(record.ErrKind),
		ErrCode:    record.ErrCode,
		ErrMessage: record.ErrMessage,
		SettledAt:  record.SettledAt,
	}
	if outcome.Status == core.DecryptionResolved {
		result := &core.DecryptionResult{
			RequestID: record.RequestID,
			Type:      core.EncryptedType(record.Type),
		}
		if record.Value != "" {
			value, err := uint256.FromDecimal(record.Value)
			if err != nil {
				return nil, false, fmt.Errorf("invalid stored value: %w", err)
			}
			result.Value = value
		}
		outcome.Result = result
	}

	return outcome, true, nil
}
