package automation

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsflow/pkg/cel"
)

func newTestParser(t *testing.T) (conditionParser, *Evaluator) {
	t.Helper()
	exprs, err := cel.NewEvaluator()
	require.NoError(t, err)
	return conditionParser{exprs: exprs}, NewEvaluator(exprs, BusinessHours{})
}

// parseJSON parses a condition list written as JSON, the way rules are
// stored.
func parseJSON(t *testing.T, p conditionParser, raw string) Condition {
	t.Helper()
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	node, err := p.parseConditions(decoded)
	require.NoError(t, err)
	return node
}

func evalContext() map[string]interface{} {
	return map[string]interface{}{
		"payload": map[string]interface{}{
			"to":          "completed",
			"completedAt": "2025-03-12T09:00:00Z",
			"scheduledAt": "2025-03-14T08:00:00Z",
		},
		"job": map[string]interface{}{
			"id":       "J1",
			"status":   "completed",
			"priority": "normal",
			"total":    1250.0,
			"tags":     []interface{}{"roof", "insurance"},
			"address":  map[string]interface{}{"city": "Denver"},
		},
		"contact": map[string]interface{}{
			"email": "owner@example.com",
			"tags":  []interface{}{"vip"},
		},
	}
}

func TestEvaluate_Compare(t *testing.T) {
	parser, eval := newTestParser(t)

	tests := []struct {
		name     string
		cond     string
		expected bool
	}{
		{"eq string", `{"type":"compare","left":{"ref":"job.status"},"op":"eq","right":"completed"}`, true},
		{"eq number across types", `{"type":"compare","left":{"ref":"job.total"},"op":"eq","right":{"value":1250}}`, true},
		{"neq", `{"type":"compare","left":{"ref":"job.priority"},"op":"neq","right":"urgent"}`, true},
		{"gt", `{"type":"compare","left":{"ref":"job.total"},"op":"gt","right":1000}`, true},
		{"gte equal", `{"type":"compare","left":{"ref":"job.total"},"op":"gte","right":1250}`, true},
		{"lt", `{"type":"compare","left":{"ref":"job.total"},"op":"lt","right":1000}`, false},
		{"lte strings", `{"type":"compare","left":{"ref":"job.status"},"op":"lte","right":"z"}`, true},
		{"gt mixed types", `{"type":"compare","left":{"ref":"job.status"},"op":"gt","right":5}`, false},
		{"in list", `{"type":"compare","left":{"ref":"job.priority"},"op":"in","right":["normal","low"]}`, true},
		{"in missing", `{"type":"compare","left":{"ref":"job.priority"},"op":"in","right":["urgent"]}`, false},
		{"contains list", `{"type":"compare","left":{"ref":"job.tags"},"op":"contains","right":"roof"}`, true},
		{"contains substring", `{"type":"compare","left":{"ref":"contact.email"},"op":"contains","right":"@example"}`, true},
		{"exists", `{"type":"compare","left":{"ref":"contact.email"},"op":"exists"}`, true},
		{"exists missing", `{"type":"compare","left":{"ref":"contact.phone"},"op":"exists"}`, false},
		{"nested path", `{"type":"compare","left":{"ref":"job.address.city"},"op":"eq","right":"Denver"}`, true},
		{"list index path", `{"type":"compare","left":{"ref":"job.tags.1"},"op":"eq","right":"insurance"}`, true},
		{"missing entity", `{"type":"compare","left":{"ref":"listing.status"},"op":"eq","right":"active"}`, false},
		{"ref on both sides", `{"type":"compare","left":{"ref":"payload.to"},"op":"eq","right":{"ref":"job.status"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := parseJSON(t, parser, "["+tt.cond+"]")
			result, _ := eval.Evaluate(context.Background(), node, evalContext(), testNow)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_NestedTruthTable(t *testing.T) {
	_, eval := newTestParser(t)

	// a > 5 AND (b == "x" OR NOT(c exists))
	node := All{Children: []Condition{
		Compare{Left: Ref("payload.a"), Op: OpGt, Right: Literal(5)},
		Any{Children: []Condition{
			Compare{Left: Ref("payload.b"), Op: OpEq, Right: Literal("x")},
			Not{Child: Compare{Left: Ref("payload.c"), Op: OpExists}},
		}},
	}}

	tests := []struct {
		name     string
		a        float64
		b        string
		c        bool
		expected bool
	}{
		{"a b c", 7, "x", true, true},
		{"a b", 7, "x", false, true},
		{"a c", 7, "y", true, false},
		{"a", 7, "y", false, true},
		{"b c", 3, "x", true, false},
		{"b", 3, "x", false, false},
		{"c", 3, "y", true, false},
		{"none", 3, "y", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]interface{}{"a": tt.a, "b": tt.b}
			if tt.c {
				payload["c"] = "set"
			}
			data := map[string]interface{}{"payload": payload}

			result, trace := eval.Evaluate(context.Background(), node, data, testNow)
			assert.Equal(t, tt.expected, result)
			require.NotEmpty(t, trace)
			assert.Equal(t, tt.expected, trace[0].Result)
		})
	}
}

func TestEvaluate_Time(t *testing.T) {
	parser, eval := newTestParser(t)

	tests := []struct {
		name     string
		cond     string
		expected bool
	}{
		{"within hours", `{"type":"time","op":"within_hours","ref":"payload.completedAt","hours":24}`, true},
		{"not within hours", `{"type":"time","op":"within_hours","ref":"payload.completedAt","hours":2}`, false},
		{"within hours future", `{"type":"time","op":"within_hours","ref":"payload.scheduledAt","hours":48}`, true},
		{"before", `{"type":"time","op":"before","ref":"payload.scheduledAt"}`, true},
		{"after", `{"type":"time","op":"after","ref":"payload.completedAt"}`, true},
		{"after literal", `{"type":"time","op":"after","value":"2025-04-01T00:00:00Z"}`, false},
		{"epoch millis", `{"type":"time","op":"after","value":1741737600000}`, true},
		{"missing ref", `{"type":"time","op":"before","ref":"payload.dueAt"}`, false},
		{"business hours now", `{"type":"time","op":"outside_business_hours"}`, false},
		{"outside in zone", `{"type":"time","op":"outside_business_hours","timezone":"Asia/Tokyo"}`, true},
		{"weekend", `{"type":"time","op":"outside_business_hours","value":"2025-03-15T12:00:00Z"}`, true},
		{"early morning", `{"type":"time","op":"outside_business_hours","value":"2025-03-12T06:59:00Z"}`, true},
		{"end hour is outside", `{"type":"time","op":"outside_business_hours","value":"2025-03-12T18:00:00Z"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := parseJSON(t, parser, "["+tt.cond+"]")
			result, _ := eval.Evaluate(context.Background(), node, evalContext(), testNow)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_MissingTimestampIsReported(t *testing.T) {
	parser, eval := newTestParser(t)
	node := parseJSON(t, parser, `[{"type":"time","op":"within_hours","ref":"payload.dueAt","hours":4}]`)

	result, trace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	assert.False(t, result)
	require.Len(t, trace, 2)
	assert.Equal(t, "timestamp not available", trace[1].Error)
}

func TestEvaluate_BusinessHoursConfig(t *testing.T) {
	exprs, err := cel.NewEvaluator()
	require.NoError(t, err)
	eval := NewEvaluator(exprs, BusinessHours{StartHour: 7, EndHour: 15, Timezone: "UTC"})

	result, _ := eval.Evaluate(context.Background(), Time{Op: OpOutsideBusinessHours}, nil, testNow)
	assert.True(t, result)
}

func TestEvaluate_ShortCircuitTrace(t *testing.T) {
	parser, eval := newTestParser(t)
	node := parseJSON(t, parser, `[
		{"type":"any","children":[
			{"type":"compare","left":{"ref":"job.status"},"op":"eq","right":"completed"},
			{"type":"compare","left":{"ref":"job.total"},"op":"gt","right":0}
		]},
		{"type":"compare","left":{"ref":"job.priority"},"op":"eq","right":"urgent"},
		{"type":"compare","left":{"ref":"job.id"},"op":"exists"}
	]`)

	result, trace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	assert.False(t, result)

	paths := make([]string, 0, len(trace))
	for _, entry := range trace {
		paths = append(paths, entry.Path)
	}
	assert.Equal(t, []string{"$", "$.0", "$.0.0", "$.1"}, paths)
}

func TestEvaluate_EmptyConditionsPass(t *testing.T) {
	_, eval := newTestParser(t)
	result, trace := eval.Evaluate(context.Background(), All{}, nil, testNow)
	assert.True(t, result)
	assert.Len(t, trace, 1)

	result, _ = eval.Evaluate(context.Background(), Any{}, nil, testNow)
	assert.False(t, result)
}

func TestEvaluate_ExprRuntimeErrorIsFalse(t *testing.T) {
	parser, eval := newTestParser(t)
	node := parseJSON(t, parser, `[{"type":"expr","expression":"listing.status == \"active\""}]`)

	result, trace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	assert.False(t, result)
	assert.NotEmpty(t, trace[1].Error)
}

func TestEvaluate_Deterministic(t *testing.T) {
	parser, eval := newTestParser(t)
	node := parseJSON(t, parser, `[{"type":"time","op":"within_hours","ref":"payload.completedAt","hours":8}]`)

	first, firstTrace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	second, secondTrace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	assert.Equal(t, first, second)
	assert.Equal(t, firstTrace, secondTrace)

	later, _ := eval.Evaluate(context.Background(), node, evalContext(), testNow.Add(3*time.Hour))
	assert.False(t, later)
}

func TestEvaluate_GoldenTrace(t *testing.T) {
	parser, eval := newTestParser(t)
	node := parseJSON(t, parser, `[
		{"type":"any","children":[
			{"type":"compare","left":{"ref":"job.priority"},"op":"eq","right":"urgent"},
			{"type":"compare","left":{"ref":"job.total"},"op":"gte","right":1000}
		]},
		{"type":"not","child":{"type":"compare","left":{"ref":"contact.tags"},"op":"contains","right":"do_not_contact"}},
		{"type":"time","op":"within_hours","ref":"payload.completedAt","hours":24},
		{"type":"expr","expression":"job.status == \"completed\""}
	]`)

	result, trace := eval.Evaluate(context.Background(), node, evalContext(), testNow)
	require.True(t, result)

	out, err := json.MarshalIndent(trace, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "condition_trace", append(out, '\n'))
}
