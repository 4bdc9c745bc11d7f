package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/google/uuid"
)

// Entry captures a single auditable action before persistence.
type Entry struct {
	Action     enums.AuditAction
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	IPAddress  *string
	UserAgent  *string
	Metadata   map[string]any
}

type eventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service records audit entries asynchronously. Record never blocks the caller
// beyond a channel send; when the queue is full the entry is dropped and logged.
type Service interface {
	Record(ctx context.Context, entry Entry)
	Close(ctx context.Context) error
}

type service struct {
	repo        Repository
	publisher   eventPublisher
	logg        *logger.Logger
	queue       chan Entry
	done        chan struct{}
	closeOnce   sync.Once
	publishSpan time.Duration
}

// NewService builds the async audit recorder and starts its worker.
func NewService(repo Repository, publisher eventPublisher, cfg config.AuditConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	publishSpan := cfg.PublishSpan
	if publishSpan <= 0 {
		publishSpan = 3 * time.Second
	}

	s := &service{
		repo:        repo,
		publisher:   publisher,
		logg:        logg,
		queue:       make(chan Entry, queueSize),
		done:        make(chan struct{}),
		publishSpan: publishSpan,
	}
	go s.run()
	return s, nil
}

// Record enqueues the entry for persistence. Ledger writes never wait on, or
// fail because of, the audit trail.
func (s *service) Record(ctx context.Context, entry Entry) {
	select {
	case s.queue <- entry:
	default:
		s.logg.Warn(s.logg.WithField(ctx, "entity_id", entry.EntityID.String()), "audit queue full, dropping entry")
	}
}

// Close stops accepting entries and waits for the worker to drain the queue.
func (s *service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) run() {
	defer close(s.done)
	for entry := range s.queue {
		s.persist(entry)
	}
}

func (s *service) persist(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishSpan)
	defer cancel()

	var metadata json.RawMessage
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			s.logg.Error(ctx, "failed to encode audit metadata", err)
		} else {
			metadata = encoded
		}
	}

	row := &models.AuditLog{
		ID:         uuid.New(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Metadata:   metadata,
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		s.logg.Error(ctx, "failed to persist audit entry", err)
		return
	}

	if s.publisher != nil {
		event := map[string]any{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
			"actor_id":    entry.ActorID,
			"metadata":    entry.Metadata,
		}
		if err := s.publisher.Publish(ctx, entry.EntityID.String(), event); err != nil {
			s.logg.Error(ctx, "failed to publish audit event", err)
		}
	}
}
