package automation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsflow/internal/logger"
	"opsflow/pkg/cel"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	exprs, err := cel.NewEvaluator()
	require.NoError(t, err)
	return NewNormalizer(exprs, logger.NopLogger())
}

func TestNormalize_ValidRule(t *testing.T) {
	n := newTestNormalizer(t)
	rec := newRuleRecord(t, "rule-1", "job.status_changed",
		withFilters(t, map[string]interface{}{"to": "completed"}),
		withConditions(t, completedCondition),
		withThrottle(t, map[string]interface{}{"windowHours": 12, "maxPerWindow": 2}),
	)

	rule, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "rule-1", rule.ID)
	assert.Equal(t, map[string]interface{}{"to": "completed"}, rule.TriggerFilters)
	require.Len(t, rule.Actions, 1)
	assert.Equal(t, ActionCreateNotification, rule.Actions[0].Type())
	assert.Empty(t, rule.DroppedActions)
	require.NotNil(t, rule.Throttle)
	assert.Equal(t, ThrottleScopeOrg, rule.Throttle.Scope)
	assert.Equal(t, 12.0, rule.Throttle.WindowHours)
}

func TestNormalize_EmptyColumns(t *testing.T) {
	n := newTestNormalizer(t)
	rec := RuleRecord{ID: "rule-1", TriggerType: "job.created", Conditions: json.RawMessage("null")}

	rule, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, All{}, rule.Conditions)
	assert.Empty(t, rule.Actions)
	assert.Empty(t, rule.TriggerFilters)
	assert.Nil(t, rule.Throttle)
}

func TestNormalize_InvalidConditionsVoidRule(t *testing.T) {
	n := newTestNormalizer(t)

	for name, raw := range map[string]string{
		"malformed json": `[{"type":`,
		"bad node":       `[{"type":"compare","left":1}]`,
		"not a list":     `"all"`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := newRuleRecord(t, "rule-1", "job.created")
			rec.Conditions = json.RawMessage(raw)

			rule, err := n.Normalize(context.Background(), rec)
			assert.Nil(t, rule)
			assert.Error(t, err)
		})
	}
}

func TestNormalize_LenientActions(t *testing.T) {
	n := newTestNormalizer(t)
	rec := newRuleRecord(t, "rule-1", "job.created", withActions(t, []interface{}{
		map[string]interface{}{"id": "a", "type": "task.create", "params": map[string]interface{}{"title": "Call owner"}},
		map[string]interface{}{"id": "b", "type": "teleport", "params": map[string]interface{}{}},
		map[string]interface{}{"id": "a", "type": "task.create", "params": map[string]interface{}{"title": "Again"}},
		map[string]interface{}{"type": "task.create", "params": map[string]interface{}{"title": "No id"}},
		map[string]interface{}{"id": "c", "type": "task.create", "params": map[string]interface{}{"title": "x", "colour": "red"}},
		"not an object",
		map[string]interface{}{"id": "d", "type": "materials.adjust", "params": map[string]interface{}{"quantity": -3}},
	}))

	rule, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)

	ids := make([]string, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a", "d"}, ids)

	droppedIdx := make([]int, 0, len(rule.DroppedActions))
	for _, d := range rule.DroppedActions {
		droppedIdx = append(droppedIdx, d.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, droppedIdx)
	assert.Contains(t, rule.DroppedActions[0].Error, `unknown action type "teleport"`)
	assert.Contains(t, rule.DroppedActions[1].Error, "duplicate action id")
	assert.Contains(t, rule.DroppedActions[3].Error, "colour")
}

func TestNormalize_ActionsNotAList(t *testing.T) {
	n := newTestNormalizer(t)
	rec := newRuleRecord(t, "rule-1", "job.created")
	rec.Actions = json.RawMessage(`{"id":"a"}`)

	rule, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, rule.Actions)
	require.Len(t, rule.DroppedActions, 1)
	assert.Equal(t, -1, rule.DroppedActions[0].Index)
}

func TestNormalize_InvalidThrottleIgnored(t *testing.T) {
	n := newTestNormalizer(t)

	for name, raw := range map[string]string{
		"zero window":   `{"windowHours":0,"maxPerWindow":1}`,
		"zero max":      `{"windowHours":1,"maxPerWindow":0}`,
		"unknown scope": `{"windowHours":1,"maxPerWindow":1,"scope":"region"}`,
		"malformed":     `[1,2]`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := newRuleRecord(t, "rule-1", "job.created")
			rec.Throttle = json.RawMessage(raw)

			rule, err := n.Normalize(context.Background(), rec)
			require.NoError(t, err)
			assert.Nil(t, rule.Throttle)
		})
	}
}

func TestNormalize_MalformedFiltersMatchAll(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name    string
		filters string
	}{
		{"not an object", `["to"]`},
		{"nested object", `{"to":"completed","crew":{"id":"crew-1"}}`},
		{"list of objects", `{"to":[{"status":"completed"}]}`},
		{"list of lists", `{"to":[["completed"]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRuleRecord(t, "rule-1", "job.created")
			rec.TriggerFilters = json.RawMessage(tt.filters)

			rule, err := n.Normalize(context.Background(), rec)
			require.NoError(t, err)
			assert.Empty(t, rule.TriggerFilters)
			assert.True(t, MatchTrigger(rule.TriggerFilters, map[string]interface{}{"to": "x"}))
		})
	}
}

func TestNormalize_FlatFiltersKept(t *testing.T) {
	n := newTestNormalizer(t)
	rec := newRuleRecord(t, "rule-1", "job.created")
	rec.TriggerFilters = json.RawMessage(`{"to":["scheduled","dispatched"],"priority":2,"crew.id":"crew-1","urgent":true,"note":null}`)

	rule, err := n.Normalize(context.Background(), rec)
	require.NoError(t, err)
	assert.Len(t, rule.TriggerFilters, 5)
	assert.Equal(t, []interface{}{"scheduled", "dispatched"}, rule.TriggerFilters["to"])
}
