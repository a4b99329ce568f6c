package automation

import (
	"context"
	"fmt"
	"time"

	apperrors "opsflow/pkg/errors"
	"opsflow/pkg/metrics"
	"opsflow/pkg/models"
	"opsflow/pkg/tracing"
)

type DryRunVerdict string

const (
	DryRunInvalid DryRunVerdict = "invalid"
	DryRunSkipped DryRunVerdict = "skipped"
	DryRunMatched DryRunVerdict = "matched"
)

// DryRunRequest describes a synthetic event. Rule evaluates an unsaved rule;
// RuleID evaluates one stored rule; with neither, every enabled rule for the
// event type is evaluated.
type DryRunRequest struct {
	OrgID     string                 `json:"orgId"`
	EventType string                 `json:"eventType"`
	EventID   string                 `json:"eventId,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	RuleID    string                 `json:"ruleId,omitempty"`
	Rule      *RuleRecord            `json:"rule,omitempty"`
}

type ActionPreview struct {
	ID            string       `json:"id"`
	Type          ActionType   `json:"type"`
	Params        ActionParams `json:"params"`
	NextAttemptAt *time.Time   `json:"nextAttemptAt"`
}

type DryRunResult struct {
	RuleID   string          `json:"ruleId"`
	RuleName string          `json:"ruleName,omitempty"`
	Verdict  DryRunVerdict   `json:"verdict"`
	Reason   string          `json:"reason,omitempty"`
	Trace    Trace           `json:"trace,omitempty"`
	Actions  []ActionPreview `json:"actions,omitempty"`
	Warnings []DroppedAction `json:"warnings,omitempty"`
}

// DryRun evaluates rules against a synthetic event exactly as ProcessEvent
// would, without throttle or rate limit checks and without writing anything.
func (e *Engine) DryRun(ctx context.Context, req DryRunRequest) ([]DryRunResult, error) {
	ctx, span := tracing.Start(ctx, "automation.dry_run",
		tracing.AttrOrgID.String(req.OrgID),
		tracing.AttrEventType.String(req.EventType),
	)
	defer span.End()

	if req.OrgID == "" || req.EventType == "" {
		return nil, apperrors.ErrValidation.WithDetail("message", "orgId and eventType are required")
	}

	rules, err := e.dryRunRules(ctx, req)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	event := models.AppEvent{
		ID:        req.EventID,
		OrgID:     req.OrgID,
		EventType: req.EventType,
		Payload:   req.Payload,
		CreatedAt: now,
	}
	if event.ID == "" {
		event.ID = "dry-run-" + e.newID()
	}
	if event.Payload == nil {
		event.Payload = map[string]interface{}{}
	}

	resolver := newContextResolver(e.loader, event)
	results := make([]DryRunResult, 0, len(rules))

	for _, rec := range rules {
		res := DryRunResult{RuleID: rec.ID, RuleName: rec.Name}

		if rec.TriggerType != event.EventType {
			res.Verdict = DryRunSkipped
			res.Reason = fmt.Sprintf("rule triggers on %q, not %q", rec.TriggerType, event.EventType)
			results = append(results, res)
			metrics.IncDryRunVerdict(string(res.Verdict))
			continue
		}

		ev, err := e.evaluateRule(ctx, rec, event, resolver, now)
		if err != nil {
			return nil, err
		}

		switch ev.verdict {
		case verdictInvalid:
			res.Verdict = DryRunInvalid
			res.Reason = ev.err.Error()
		case verdictNoMatch:
			res.Verdict = DryRunSkipped
			res.Reason = "trigger filters did not match"
			res.Warnings = ev.rule.DroppedActions
		case verdictConditionsFailed:
			res.Verdict = DryRunSkipped
			res.Reason = "conditions not met"
			res.Trace = ev.trace
			res.Warnings = ev.rule.DroppedActions
		case verdictMatched:
			res.Verdict = DryRunMatched
			res.Trace = ev.trace
			res.Warnings = ev.rule.DroppedActions
			res.Actions = previewActions(ev.rule.Actions, now)
			if len(res.Actions) == 0 {
				res.Reason = "no actions configured"
			}
		}

		metrics.IncDryRunVerdict(string(res.Verdict))
		results = append(results, res)
	}

	return results, nil
}

func (e *Engine) dryRunRules(ctx context.Context, req DryRunRequest) ([]RuleRecord, error) {
	switch {
	case req.Rule != nil:
		rec := *req.Rule
		rec.OrgID = req.OrgID
		if rec.TriggerType == "" {
			rec.TriggerType = req.EventType
		}
		if rec.ID == "" {
			rec.ID = "draft"
		}
		return []RuleRecord{rec}, nil
	case req.RuleID != "":
		rec, err := e.repo.GetRule(ctx, req.OrgID, req.RuleID)
		if err != nil {
			return nil, err
		}
		return []RuleRecord{*rec}, nil
	default:
		return e.repo.ListRulesForTrigger(ctx, req.OrgID, req.EventType)
	}
}

func previewActions(actions []Action, now time.Time) []ActionPreview {
	previews := make([]ActionPreview, 0, len(actions))
	for _, a := range actions {
		previews = append(previews, ActionPreview{
			ID:            a.ID,
			Type:          a.Type(),
			Params:        a.Params,
			NextAttemptAt: NextAttemptAt(a, now),
		})
	}
	return previews
}
