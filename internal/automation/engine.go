package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opsflow/internal/config"
	"opsflow/internal/constants"
	"opsflow/internal/entities"
	"opsflow/internal/logger"
	"opsflow/pkg/cel"
	"opsflow/pkg/logging"
	"opsflow/pkg/metrics"
	"opsflow/pkg/models"
	"opsflow/pkg/tracing"
)

// Config holds the engine switches and limits. A MaxActionsPerMinute of
// zero disables the org rate limit.
type Config struct {
	Enabled             bool
	MaxActionsPerMinute int
	MaxLineageDepth     int
	RateLimitWindow     time.Duration
	BusinessHours       BusinessHours
}

func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxActionsPerMinute: constants.DefaultMaxActionsPerMinute,
		MaxLineageDepth:     constants.DefaultMaxLineageDepth,
		RateLimitWindow:     constants.DefaultRateLimitWindow,
		BusinessHours:       BusinessHours{StartHour: 8, EndHour: 18, Timezone: "UTC"},
	}
}

func ConfigFrom(cfg config.AutomationConfig) Config {
	return Config{
		Enabled:             cfg.Enabled,
		MaxActionsPerMinute: cfg.MaxActionsPerMinute,
		MaxLineageDepth:     cfg.MaxLineageDepth,
		RateLimitWindow:     cfg.RateLimitWindow,
		BusinessHours: BusinessHours{
			StartHour: cfg.BusinessHours.StartHour,
			EndHour:   cfg.BusinessHours.EndHour,
			Timezone:  cfg.BusinessHours.Timezone,
		},
	}
}

type Engine struct {
	repo       Repository
	loader     entities.Loader
	normalizer *Normalizer
	evaluator  *Evaluator
	cfg        Config
	logger     logger.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(repo Repository, loader entities.Loader, cfg Config, log logger.Logger, opts ...Option) (*Engine, error) {
	exprs, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = constants.DefaultRateLimitWindow
	}

	e := &Engine{
		repo:       repo,
		loader:     loader,
		normalizer: NewNormalizer(exprs, log),
		evaluator:  NewEvaluator(exprs, cfg.BusinessHours),
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type Outcome string

const (
	OutcomeProcessed     Outcome = "processed"
	OutcomeDisabled      Outcome = "disabled"
	OutcomeLineageCapped Outcome = "lineage_capped"
	OutcomeError         Outcome = "error"
)

// RuleOutcome describes what happened to one candidate rule. Status is empty
// when no run was recorded.
type RuleOutcome struct {
	RuleID        string    `json:"ruleId"`
	RunID         string    `json:"runId,omitempty"`
	Status        RunStatus `json:"status,omitempty"`
	ReasonCode    string    `json:"reasonCode,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Duplicate     bool      `json:"duplicate,omitempty"`
	ActionsQueued int       `json:"actionsQueued,omitempty"`
}

type Result struct {
	EventID string        `json:"eventId"`
	Outcome Outcome       `json:"outcome"`
	Rules   []RuleOutcome `json:"rules"`
}

// ProcessEvent evaluates every enabled rule for the event's type and records
// runs and outbox entries. Store errors are returned unhandled; the whole
// call is safe to repeat for the same event.
func (e *Engine) ProcessEvent(ctx context.Context, event models.AppEvent) (result *Result, err error) {
	ctx, span := tracing.Start(ctx, "automation.process_event", tracing.EventAttributes(event)...)
	defer span.End()

	ctx = logging.WithOrgID(ctx, event.OrgID)
	ctx = logging.WithEventID(ctx, event.ID)

	start := time.Now()
	result = &Result{EventID: event.ID, Rules: make([]RuleOutcome, 0)}
	defer func() {
		outcome := result.Outcome
		if err != nil {
			outcome = OutcomeError
		}
		tracing.RecordError(span, err)
		span.SetAttributes(tracing.AttrOutcome.String(string(outcome)))
		metrics.IncAutomationEvent(string(outcome))
		metrics.ObserveAutomationDuration(time.Since(start), string(outcome))
	}()

	if !e.cfg.Enabled {
		result.Outcome = OutcomeDisabled
		return result, nil
	}

	lineage := ExtractLineage(event.Payload)
	if lineage.Exceeds(e.cfg.MaxLineageDepth) {
		e.logger.WarnwCtx(ctx, "Automation lineage depth reached, event ignored",
			"depth", lineage.Depth,
			"max_depth", e.cfg.MaxLineageDepth,
			"parent_event_id", lineage.ParentEventID,
		)
		result.Outcome = OutcomeLineageCapped
		return result, nil
	}

	e.invalidateReferenced(ctx, event)

	rules, err := e.repo.ListRulesForTrigger(ctx, event.OrgID, event.EventType)
	if err != nil {
		return result, fmt.Errorf("failed to load rules: %w", err)
	}

	resolver := newContextResolver(e.loader, event)
	now := e.now().UTC()

	for _, rec := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := e.processRule(ctx, rec, event, lineage, resolver, now)
		if err != nil {
			return result, fmt.Errorf("rule %s: %w", rec.ID, err)
		}
		result.Rules = append(result.Rules, outcome)
	}

	result.Outcome = OutcomeProcessed
	e.logger.DebugwCtx(ctx, "Event processed",
		"rules_considered", len(rules),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// invalidateReferenced drops cached copies of the entities an event names,
// since the event reports a change to them.
func (e *Engine) invalidateReferenced(ctx context.Context, event models.AppEvent) {
	inv, ok := e.loader.(entities.Invalidator)
	if !ok {
		return
	}
	for _, ref := range primaryOrder {
		id := payloadID(event.Payload, ref.payloadKey)
		if id == "" {
			continue
		}
		if err := inv.Invalidate(ctx, event.OrgID, ref.kind, id); err != nil {
			e.logger.WarnwCtx(ctx, "Failed to invalidate cached entity",
				"kind", ref.kind,
				"entity_id", id,
				"error", err,
			)
		}
	}
}

type verdict int

const (
	verdictInvalid verdict = iota
	verdictNoMatch
	verdictConditionsFailed
	verdictMatched
)

type evaluation struct {
	rule    *Rule
	verdict verdict
	err     error
	trace   Trace
	data    map[string]interface{}
}

// evaluateRule is the part of rule processing shared with DryRun:
// normalize, match triggers, resolve the context and evaluate conditions.
func (e *Engine) evaluateRule(ctx context.Context, rec RuleRecord, event models.AppEvent, resolver *contextResolver, now time.Time) (evaluation, error) {
	rule, err := e.normalizer.Normalize(ctx, rec)
	if err != nil {
		return evaluation{verdict: verdictInvalid, err: err}, nil
	}

	ev := evaluation{rule: rule}
	if !MatchTrigger(rule.TriggerFilters, event.Payload) {
		ev.verdict = verdictNoMatch
		return ev, nil
	}

	data, err := resolver.Resolve(ctx)
	if err != nil {
		return ev, err
	}
	ev.data = data

	passed, trace := e.evaluator.Evaluate(ctx, rule.Conditions, data, now)
	ev.trace = trace
	if passed {
		ev.verdict = verdictMatched
	} else {
		ev.verdict = verdictConditionsFailed
	}
	return ev, nil
}

func (e *Engine) processRule(ctx context.Context, rec RuleRecord, event models.AppEvent, lineage Lineage, resolver *contextResolver, now time.Time) (RuleOutcome, error) {
	ctx, span := tracing.Start(ctx, "automation.evaluate_rule", tracing.RuleAttributes(rec.ID, rec.Version)...)
	defer span.End()

	out, err := e.runRule(ctx, rec, event, lineage, resolver, now)
	tracing.RecordError(span, err)
	span.SetAttributes(tracing.AttrOutcome.String(out.label()))
	return out, err
}

// label is the span outcome: the reason code, "duplicate", or the status.
func (o RuleOutcome) label() string {
	switch {
	case o.ReasonCode != "":
		return o.ReasonCode
	case o.Duplicate:
		return "duplicate"
	case o.Status != "":
		return string(o.Status)
	}
	return "error"
}

func (e *Engine) runRule(ctx context.Context, rec RuleRecord, event models.AppEvent, lineage Lineage, resolver *contextResolver, now time.Time) (RuleOutcome, error) {
	out := RuleOutcome{RuleID: rec.ID}

	ev, err := e.evaluateRule(ctx, rec, event, resolver, now)
	if err != nil {
		return out, err
	}

	switch ev.verdict {
	case verdictInvalid:
		out.ReasonCode = "invalid"
		out.Reason = ev.err.Error()
		return out, nil
	case verdictNoMatch:
		out.ReasonCode = "trigger_mismatch"
		return out, nil
	}

	run := e.newRun(ev, event, lineage, now)

	if ev.verdict == verdictConditionsFailed {
		return e.recordSkip(ctx, run, ReasonConditionsNotMet, "conditions not met")
	}

	if reason, err := e.checkThrottle(ctx, ev.rule, run, now); err != nil {
		return out, err
	} else if reason != "" {
		return e.recordSkip(ctx, run, ReasonThrottled, reason)
	}

	if len(ev.rule.Actions) == 0 {
		return e.recordSkip(ctx, run, ReasonNoActions, "no actions configured")
	}

	if reason, err := e.checkRateLimit(ctx, event.OrgID, now); err != nil {
		return out, err
	} else if reason != "" {
		return e.recordSkip(ctx, run, ReasonRateLimited, reason)
	}

	return e.enqueue(ctx, run, ev.rule, lineage, now)
}

func (e *Engine) newRun(ev evaluation, event models.AppEvent, lineage Lineage, now time.Time) *Run {
	entityType, entityID := PrimaryEntity(event.Payload, ev.data)

	run := &Run{
		ID:            e.newID(),
		OrgID:         event.OrgID,
		RuleID:        ev.rule.ID,
		RuleVersion:   ev.rule.Version,
		EventID:       event.ID,
		EventType:     event.EventType,
		ParentEventID: lineage.ParentEventID,
		EntityType:    entityType,
		EntityID:      entityID,
		JobID:         JobID(event.Payload, ev.data),
		Snapshot:      buildSnapshot(ev.data),
		LineageDepth:  lineage.Depth,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, dropped := range ev.rule.DroppedActions {
		run.log(now, "warn", "action dropped during validation", dropped)
	}
	run.log(now, "info", "conditions evaluated", map[string]interface{}{
		"passed": ev.verdict == verdictMatched,
		"trace":  ev.trace,
	})
	return run
}

func (r *Run) log(at time.Time, level, message string, data interface{}) {
	r.Logs = append(r.Logs, LogEntry{At: at, Level: level, Message: message, Data: data})
}

func (e *Engine) recordSkip(ctx context.Context, run *Run, code, reason string) (RuleOutcome, error) {
	run.Status = RunStatusSkipped
	run.Reason = reason
	run.log(run.CreatedAt, "info", "run skipped", map[string]interface{}{"reason": reason})

	out := RuleOutcome{RuleID: run.RuleID, ReasonCode: code, Reason: reason}

	inserted, err := e.repo.InsertRun(ctx, run)
	if err != nil {
		return out, err
	}
	if !inserted {
		out.Duplicate = true
		return out, nil
	}

	metrics.IncRuleRun(string(RunStatusSkipped), code)
	e.logger.DebugwCtx(ctx, "Rule run skipped",
		"rule_id", run.RuleID,
		"run_id", run.ID,
		"reason", reason,
	)

	out.RunID = run.ID
	out.Status = RunStatusSkipped
	return out, nil
}

func (e *Engine) checkThrottle(ctx context.Context, rule *Rule, run *Run, now time.Time) (string, error) {
	t := rule.Throttle
	if t == nil {
		return "", nil
	}

	window := time.Duration(t.WindowHours * float64(time.Hour))
	filter := RunCountFilter{
		OrgID:          run.OrgID,
		RuleID:         rule.ID,
		Since:          now.Add(-window),
		ExcludeEventID: run.EventID,
	}

	scopeValue := ""
	switch t.Scope {
	case ThrottleScopeEntity:
		if run.EntityID == "" {
			return "", nil
		}
		filter.EntityType = run.EntityType
		filter.EntityID = run.EntityID
		scopeValue = run.EntityID
	case ThrottleScopeJob:
		if run.JobID == "" {
			return "", nil
		}
		filter.JobID = run.JobID
		scopeValue = run.JobID
	}

	count, err := e.repo.CountRecentRuns(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("failed to count recent runs: %w", err)
	}
	if count < t.MaxPerWindow {
		return "", nil
	}

	reason := fmt.Sprintf("throttled: %d runs in the last %gh (max %d, scope %s", count, t.WindowHours, t.MaxPerWindow, t.Scope)
	if scopeValue != "" {
		reason += " " + scopeValue
	}
	return reason + ")", nil
}

func (e *Engine) checkRateLimit(ctx context.Context, orgID string, now time.Time) (string, error) {
	if e.cfg.MaxActionsPerMinute <= 0 {
		return "", nil
	}

	count, err := e.repo.CountOutboxSince(ctx, orgID, now.Add(-e.cfg.RateLimitWindow))
	if err != nil {
		return "", fmt.Errorf("failed to count recent actions: %w", err)
	}
	if count < e.cfg.MaxActionsPerMinute {
		return "", nil
	}

	return fmt.Sprintf("org rate limit reached: %d actions queued in the last %s (max %d)",
		count, e.cfg.RateLimitWindow, e.cfg.MaxActionsPerMinute), nil
}

type entityPointer struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// actionEnvelope is the outbox payload handed to the dispatcher. Lineage is
// what any event the action emits must carry.
type actionEnvelope struct {
	Params  ActionParams   `json:"params"`
	Entity  *entityPointer `json:"entity,omitempty"`
	JobID   string         `json:"jobId,omitempty"`
	Lineage Lineage        `json:"lineage"`
}

func (e *Engine) enqueue(ctx context.Context, run *Run, rule *Rule, lineage Lineage, now time.Time) (RuleOutcome, error) {
	out := RuleOutcome{RuleID: rule.ID}

	run.Status = RunStatusQueued
	run.log(now, "info", "actions queued", map[string]interface{}{"count": len(rule.Actions)})

	inserted, err := e.repo.InsertRun(ctx, run)
	if err != nil {
		return out, err
	}
	if !inserted {
		e.logger.DebugwCtx(ctx, "Rule already processed for event",
			"rule_id", rule.ID,
		)
		out.Duplicate = true
		return out, nil
	}
	out.RunID = run.ID
	out.Status = RunStatusQueued

	entries, err := e.buildOutbox(run, rule, lineage, now)
	if err != nil {
		return out, err
	}

	n, err := e.repo.InsertOutboxEntries(ctx, entries)
	if err != nil {
		return out, err
	}
	out.ActionsQueued = n

	metrics.IncRuleRun(string(RunStatusQueued), "")
	for _, entry := range entries {
		metrics.AddActionsEnqueued(string(entry.ActionType), 1)
	}

	e.logger.InfowCtx(ctx, "Rule run queued",
		"rule_id", rule.ID,
		"run_id", run.ID,
		"entity_type", run.EntityType,
		"entity_id", run.EntityID,
		"actions", n,
	)
	return out, nil
}

func (e *Engine) buildOutbox(run *Run, rule *Rule, lineage Lineage, now time.Time) ([]OutboxEntry, error) {
	var entity *entityPointer
	if run.EntityID != "" {
		entity = &entityPointer{Type: run.EntityType, ID: run.EntityID}
	}

	entries := make([]OutboxEntry, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		payload, err := json.Marshal(actionEnvelope{
			Params:  action.Params,
			Entity:  entity,
			JobID:   run.JobID,
			Lineage: lineage.Child(run.EventID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode action %s: %w", action.ID, err)
		}

		entries = append(entries, OutboxEntry{
			ID:            e.newID(),
			OrgID:         run.OrgID,
			RunID:         run.ID,
			RuleID:        rule.ID,
			EventID:       run.EventID,
			ActionType:    action.Type(),
			ActionKey:     action.ID,
			ActionPayload: payload,
			Status:        OutboxStatusQueued,
			NextAttemptAt: NextAttemptAt(action, now),
			CreatedAt:     now,
		})
	}
	return entries, nil
}
