package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxKeyLength caps accepted idempotency keys.
const MaxKeyLength = 255

// Coordinator arbitrates duplicate requests through the idempotency table.
// The unique index on the key column is the arbiter: whichever request
// inserts first wins, every other request replays the stored response.
type Coordinator interface {
	WithTx(tx *gorm.DB) Coordinator
	Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Claim(ctx context.Context, key string, accountID *uuid.UUID, statusCode int, response any) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type coordinator struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewCoordinator builds a coordinator with the record TTL applied on claim.
func NewCoordinator(repo Repository, ttl time.Duration) (Coordinator, error) {
	if repo == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("idempotency ttl must be positive")
	}
	return &coordinator{repo: repo, ttl: ttl, now: time.Now}, nil
}

func (c *coordinator) WithTx(tx *gorm.DB) Coordinator {
	if tx == nil {
		return c
	}
	return &coordinator{repo: c.repo.WithTx(tx), ttl: c.ttl, now: c.now}
}

// Lookup returns the stored record for key, nil when the key is unclaimed.
// Matches are unconditional: the stored response is returned even when the
// replayed request body differs from the original.
func (c *coordinator) Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return c.repo.Find(ctx, normalized)
}

// Claim stores the response under key. Returns ErrKeyConflict when another
// request claimed the key first.
func (c *coordinator) Claim(ctx context.Context, key string, accountID *uuid.UUID, statusCode int, response any) error {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return err
	}

	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshaling idempotent response: %w", err)
	}

	now := c.now().UTC()
	expires := now.Add(c.ttl)
	record := &models.IdempotencyRecord{
		ID:           uuid.New(),
		Key:          normalized,
		AccountID:    accountID,
		ResponseBody: body,
		StatusCode:   statusCode,
		CreatedAt:    now,
		ExpiresAt:    &expires,
	}
	return c.repo.Insert(ctx, record)
}

func (c *coordinator) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.repo.DeleteExpired(ctx, now)
}

// NormalizeKey trims whitespace and validates length.
func NormalizeKey(key string) (string, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return "", fmt.Errorf("idempotency key is required")
	}
	if len(normalized) > MaxKeyLength {
		return "", fmt.Errorf("idempotency key exceeds %d characters", MaxKeyLength)
	}
	return normalized, nil
}
