package events

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/fleet/internal/fleet/errors"
	"github.com/gartstein/fleet/internal/fleet/models"
	"go.uber.org/zap"
)

type AuditStore interface {
	CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// AuditRecorder persists events as audit history.
type AuditRecorder struct {
	store  AuditStore
	logger *zap.Logger
}

func NewAuditRecorder(store AuditStore, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{store: store, logger: logger.Named("audit_recorder")}
}

// Handle stores one event. Redelivered events are ignored since the entry id
// is the event id.
func (r *AuditRecorder) Handle(ctx context.Context, event Event) error {
	err := r.store.CreateAuditEntry(ctx, event.AuditEntry())
	if errors.Is(err, e.ErrDuplicate) {
		r.logger.Debug("audit entry already recorded", zap.String("event_id", event.ID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// InlineProducer records events synchronously without a broker. It is used
// when Kafka is disabled.
type InlineProducer struct {
	recorder *AuditRecorder
}

func NewInlineProducer(recorder *AuditRecorder) *InlineProducer {
	return &InlineProducer{recorder: recorder}
}

func (p *InlineProducer) Produce(event Event) {
	if err := p.recorder.Handle(context.Background(), event); err != nil {
		p.recorder.logger.Error("Failed to record event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// Close is a no-op; there is nothing to flush.
func (p *InlineProducer) Close() {}
