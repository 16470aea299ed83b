// Package audit provides the append-only compliance event trail. Every
// lifecycle transition, hold change and destructive operation records an
// event here; external I/O and consistency failures are audited before
// they are surfaced to callers.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mkarling/podkeeper/internal/datastore"
	"github.com/mkarling/podkeeper/internal/logging"
)

// Sink accepts audit events. Implementations must be append-only.
type Sink interface {
	Record(ctx context.Context, action, entityID, actor string, details map[string]any)
}

// Logger writes audit events to the datastore and mirrors them to the
// structured log. A failure to persist an event is logged but never blocks
// the operation being audited.
type Logger struct {
	store  datastore.Interface
	logger *slog.Logger
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store datastore.Interface) *Logger {
	return &Logger{
		store:  store,
		logger: logging.ForService("audit"),
	}
}

// Record appends one event. The correlation id is read from the context
// when present and folded into the details.
func (l *Logger) Record(ctx context.Context, action, entityID, actor string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	if cid := CorrelationID(ctx); cid != "" {
		details["correlation_id"] = cid
	}

	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	event := &datastore.AuditEvent{
		Action:    action,
		EntityID:  entityID,
		Actor:     actor,
		Details:   string(payload),
		Timestamp: time.Now(),
	}
	if err := l.store.SaveAuditEvent(event); err != nil {
		l.logger.Error("failed to persist audit event",
			"action", action,
			"entity_id", entityID,
			"error", err)
	}

	l.logger.Info("audit",
		"action", action,
		"entity_id", entityID,
		"actor", actor)
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id. The id
// travels explicitly through every call; there is no ambient state.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the correlation id from the context, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Discard is a Sink that drops every event; tests only.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(context.Context, string, string, string, map[string]any) {}
