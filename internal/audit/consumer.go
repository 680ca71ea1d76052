package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/metrics"
)

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, ev *Event) error
}

// recordTimeout bounds a single insert.
const recordTimeout = 5 * time.Second

// Consumer turns raw domain events into audit rows.
type Consumer struct {
	rec Recorder
}

// NewConsumer creates a Consumer writing to rec.
func NewConsumer(rec Recorder) *Consumer {
	return &Consumer{rec: rec}
}

// Handle records one event. Every domain event carries a user_uuid field;
// payloads that are not JSON objects are dropped.
func (c *Consumer) Handle(subject string, data []byte) {
	var envelope struct {
		UserUUID string `json:"user_uuid"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("[auditor] drop malformed event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	ev := &Event{Subject: subject, UserUUID: envelope.UserUUID, Payload: json.RawMessage(data)}
	if err := c.rec.Record(ctx, ev); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("[auditor] record event failed")
		return
	}
	metrics.EventsPersisted.WithLabelValues(subject).Inc()
	log.Debug().Str("subject", subject).Str("user", envelope.UserUUID).Int64("id", ev.ID).Msg("[auditor] event recorded")
}
