package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"opsflow/internal/logger"
	"opsflow/pkg/metrics"
)

// Normalizer turns persisted rules into Rules. Conditions are all or
// nothing; actions are validated one by one and invalid ones are dropped.
type Normalizer struct {
	parser conditionParser
	logger logger.Logger
}

func NewNormalizer(exprs exprValidator, log logger.Logger) *Normalizer {
	return &Normalizer{
		parser: conditionParser{exprs: exprs},
		logger: log,
	}
}

// Normalize returns a nil Rule and the structural error when the condition
// list is invalid.
func (n *Normalizer) Normalize(ctx context.Context, rec RuleRecord) (*Rule, error) {
	rule := &Rule{
		ID:             rec.ID,
		OrgID:          rec.OrgID,
		Name:           rec.Name,
		TriggerType:    rec.TriggerType,
		Version:        rec.Version,
		TriggerFilters: n.triggerFilters(ctx, rec),
	}

	conditions, err := n.conditions(rec.Conditions)
	if err != nil {
		metrics.IncRuleInvalid("conditions")
		n.logger.ErrorwCtx(ctx, "Rule conditions are invalid, rule will not be evaluated",
			"rule_id", rec.ID,
			"rule_name", rec.Name,
			"error", err,
		)
		return nil, err
	}
	rule.Conditions = conditions

	rule.Actions, rule.DroppedActions = n.actions(ctx, rec)
	rule.Throttle = n.throttle(ctx, rec)

	return rule, nil
}

func (n *Normalizer) triggerFilters(ctx context.Context, rec RuleRecord) map[string]interface{} {
	if isEmptyJSON(rec.TriggerFilters) {
		return map[string]interface{}{}
	}

	var filters map[string]interface{}
	if err := json.Unmarshal(rec.TriggerFilters, &filters); err != nil || filters == nil {
		n.logger.WarnwCtx(ctx, "Rule trigger filters are malformed, matching all events",
			"rule_id", rec.ID,
			"error", err,
		)
		return map[string]interface{}{}
	}
	for key, value := range filters {
		if !isFlatFilterValue(value) {
			n.logger.WarnwCtx(ctx, "Rule trigger filters are not flat, matching all events",
				"rule_id", rec.ID,
				"key", key,
			)
			return map[string]interface{}{}
		}
	}
	return filters
}

// isFlatFilterValue accepts scalars and lists of scalars.
func isFlatFilterValue(v interface{}) bool {
	switch val := v.(type) {
	case map[string]interface{}:
		return false
	case []interface{}:
		for _, item := range val {
			switch item.(type) {
			case map[string]interface{}, []interface{}:
				return false
			}
		}
	}
	return true
}

func (n *Normalizer) conditions(raw json.RawMessage) (Condition, error) {
	if isEmptyJSON(raw) {
		return All{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ValidationError{Path: "conditions", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return n.parser.parseConditions(decoded)
}

func (n *Normalizer) actions(ctx context.Context, rec RuleRecord) ([]Action, []DroppedAction) {
	if isEmptyJSON(rec.Actions) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rec.Actions, &items); err != nil {
		metrics.IncRuleInvalid("actions")
		n.logger.ErrorwCtx(ctx, "Rule actions are not a list, no actions will run",
			"rule_id", rec.ID,
			"error", err,
		)
		return nil, []DroppedAction{{Index: -1, Error: "actions must be a list"}}
	}

	actions := make([]Action, 0, len(items))
	var dropped []DroppedAction
	seen := make(map[string]bool, len(items))

	for i, item := range items {
		head, action, err := parseAction(item)
		if err == nil && seen[action.ID] {
			err = fmt.Errorf("duplicate action id %q", action.ID)
		}
		if err != nil {
			metrics.IncRuleInvalid("action")
			n.logger.ErrorwCtx(ctx, "Dropping invalid rule action",
				"rule_id", rec.ID,
				"action_index", i,
				"action_id", head.ID,
				"action_type", head.Type,
				"error", err,
			)
			dropped = append(dropped, DroppedAction{Index: i, ID: head.ID, Type: head.Type, Error: err.Error()})
			continue
		}
		seen[action.ID] = true
		actions = append(actions, action)
	}

	return actions, dropped
}

func (n *Normalizer) throttle(ctx context.Context, rec RuleRecord) *Throttle {
	if isEmptyJSON(rec.Throttle) {
		return nil
	}

	var t Throttle
	err := json.Unmarshal(rec.Throttle, &t)
	if err == nil {
		err = validate.Struct(&t)
	}
	if err != nil {
		n.logger.WarnwCtx(ctx, "Rule throttle is invalid, rule is not throttled",
			"rule_id", rec.ID,
			"error", err,
		)
		return nil
	}

	if t.Scope == "" {
		t.Scope = ThrottleScopeOrg
	}
	return &t
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
