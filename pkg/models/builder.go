package models

import (
	"time"

	"github.com/google/uuid"
)

// AppEventBuilder assembles events for replay and tests. Build fills a
// missing ID and timestamp; timestamps are always UTC.
type AppEventBuilder struct {
	event AppEvent
}

func NewAppEventBuilder(orgID, eventType string) *AppEventBuilder {
	return &AppEventBuilder{
		event: AppEvent{
			OrgID:     orgID,
			EventType: eventType,
			Payload:   make(map[string]interface{}),
		},
	}
}

func (b *AppEventBuilder) WithID(id string) *AppEventBuilder {
	b.event.ID = id
	return b
}

// WithPayload replaces the payload; a nil map keeps the current one.
func (b *AppEventBuilder) WithPayload(payload map[string]interface{}) *AppEventBuilder {
	if payload != nil {
		b.event.Payload = payload
	}
	return b
}

func (b *AppEventBuilder) WithCreatedAt(createdAt time.Time) *AppEventBuilder {
	b.event.CreatedAt = createdAt.UTC()
	return b
}

func (b *AppEventBuilder) Build() AppEvent {
	event := b.event
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return event
}
