// Package audit emits best-effort audit events for auth activity and
// authorization decisions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"caresight/backend/internal/audit/domain"
	"caresight/backend/internal/audit/producer"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync
// and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before
// closing the producer, so in-flight async emits have time to complete.
// Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Emitter emits audit events without blocking callers. A nil *Emitter or one
// with a nil producer drops everything, so handlers never nil-check.
type Emitter struct {
	prod producer.Producer
	log  zerolog.Logger
	nowF func() time.Time
}

// NewEmitter returns an Emitter over the producer. prod may be nil.
func NewEmitter(prod producer.Producer, log zerolog.Logger) *Emitter {
	return &Emitter{
		prod: prod,
		log:  log,
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// EmitAsync stamps and sends the event in a goroutine so the caller is not
// blocked. Best effort; failures are logged. The goroutine runs on a
// background context so request cancellation does not abort an in-flight emit.
func (e *Emitter) EmitAsync(event *domain.Event) {
	if e == nil || e.prod == nil || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.nowF()
	}
	log := e.log
	prod := e.prod
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := prod.Emit(ctx, event); err != nil {
			log.Error().Err(err).Str("event_type", event.EventType).Msg("audit: async emit failed")
		}
	}()
}
