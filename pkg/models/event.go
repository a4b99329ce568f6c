package models

import "time"

// AppEvent is an immutable domain fact emitted by job, schedule, contact and
// inventory mutations. Payload is opaque to producers; the automation engine
// reads entity identifiers and lineage metadata out of it.
type AppEvent struct {
	ID        string                 `json:"id"`
	OrgID     string                 `json:"org_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// EventEnvelope is the broker wire form of an AppEvent.
type EventEnvelope struct {
	Event    AppEvent `json:"event"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	TraceID    string                 `json:"trace_id,omitempty"`
	Source     string                 `json:"source,omitempty"`
	DeadLetter map[string]interface{} `json:"dead_letter,omitempty"`
}

const (
	EventTypeJobStatusChanged      = "job.status_changed"
	EventTypeJobCreated            = "job.created"
	EventTypeScheduleUpdated       = "schedule.updated"
	EventTypeScheduleCreated       = "schedule.created"
	EventTypeMaterialUsed          = "material.used"
	EventTypeContactUpdated        = "contact.updated"
	EventTypeListingStatusChanged  = "listing.status_changed"
	EventTypeAppraisalCompleted    = "appraisal.completed"
	EventTypeReportPublished       = "report.published"
	EventTypeInvoiceStatusChanged  = "invoice.status_changed"
	EventTypeCrewAssignmentChanged = "crew_assignment.changed"
)
