package automation

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type OutboxStatus string

const (
	OutboxStatusQueued     OutboxStatus = "queued"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Skip reasons recorded on runs and used as metric labels.
const (
	ReasonConditionsNotMet = "conditions_not_met"
	ReasonThrottled        = "throttled"
	ReasonNoActions        = "no_actions"
	ReasonRateLimited      = "rate_limited"
)

// RuleRecord is a rule as persisted. The JSON columns are decoded and
// validated by the Normalizer.
type RuleRecord struct {
	ID             string          `json:"id"`
	OrgID          string          `json:"orgId"`
	Name           string          `json:"name"`
	IsEnabled      bool            `json:"isEnabled"`
	TriggerType    string          `json:"triggerType"`
	TriggerFilters json.RawMessage `json:"triggerFilters,omitempty"`
	Conditions     json.RawMessage `json:"conditions,omitempty"`
	Actions        json.RawMessage `json:"actions,omitempty"`
	Throttle       json.RawMessage `json:"throttle,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *time.Time      `json:"deletedAt,omitempty"`
}

// Rule is the validated in-memory form of a RuleRecord.
type Rule struct {
	ID             string
	OrgID          string
	Name           string
	TriggerType    string
	Version        int
	TriggerFilters map[string]interface{}
	Conditions     Condition
	Actions        []Action
	Throttle       *Throttle
	DroppedActions []DroppedAction
}

type DroppedAction struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}

type ThrottleScope string

const (
	ThrottleScopeOrg    ThrottleScope = "org"
	ThrottleScopeEntity ThrottleScope = "entity"
	ThrottleScopeJob    ThrottleScope = "job"
)

type Throttle struct {
	WindowHours  float64       `json:"windowHours" validate:"gt=0"`
	MaxPerWindow int           `json:"maxPerWindow" validate:"gte=1"`
	Scope        ThrottleScope `json:"scope" validate:"omitempty,oneof=org entity job"`
}

type LogEntry struct {
	At      time.Time   `json:"at"`
	Level   string      `json:"level"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type Run struct {
	ID            string                 `json:"id"`
	OrgID         string                 `json:"orgId"`
	RuleID        string                 `json:"ruleId"`
	RuleVersion   int                    `json:"ruleVersion"`
	EventID       string                 `json:"eventId"`
	EventType     string                 `json:"eventType"`
	ParentEventID string                 `json:"parentEventId,omitempty"`
	EntityType    string                 `json:"entityType,omitempty"`
	EntityID      string                 `json:"entityId,omitempty"`
	JobID         string                 `json:"jobId,omitempty"`
	Status        RunStatus              `json:"status"`
	Reason        string                 `json:"reason,omitempty"`
	Logs          []LogEntry             `json:"logs"`
	Snapshot      map[string]interface{} `json:"snapshot,omitempty"`
	LineageDepth  int                    `json:"lineageDepth"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

type OutboxEntry struct {
	ID                string          `json:"id"`
	OrgID             string          `json:"orgId"`
	RunID             string          `json:"runId"`
	RuleID            string          `json:"ruleId"`
	EventID           string          `json:"eventId"`
	ActionType        ActionType      `json:"actionType"`
	ActionKey         string          `json:"actionKey"`
	ActionPayload     json.RawMessage `json:"actionPayload"`
	Status            OutboxStatus    `json:"status"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"lastError,omitempty"`
	NextAttemptAt     *time.Time      `json:"nextAttemptAt"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// RunCountFilter selects prior runs for throttling. Skipped runs and runs
// for ExcludeEventID are never counted.
type RunCountFilter struct {
	OrgID          string
	RuleID         string
	Since          time.Time
	EntityType     string
	EntityID       string
	JobID          string
	ExcludeEventID string
}

type RunQuery struct {
	OrgID      string
	RuleID     string
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}
