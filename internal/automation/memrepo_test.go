package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"opsflow/internal/entities"
	"opsflow/internal/logger"
)

// memRepository enforces the same natural-key uniqueness as the postgres
// schema.
type memRepository struct {
	mu     sync.Mutex
	rules  []RuleRecord
	runs   []Run
	outbox []OutboxEntry

	listErr   error
	outboxErr error
}

func (m *memRepository) ListRulesForTrigger(ctx context.Context, orgID, triggerType string) ([]RuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []RuleRecord
	for _, r := range m.rules {
		if r.OrgID == orgID && r.TriggerType == triggerType && r.IsEnabled && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepository) GetRule(ctx context.Context, orgID, ruleID string) (*RuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.OrgID == orgID && r.ID == ruleID && r.DeletedAt == nil {
			rec := r
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) InsertRun(ctx context.Context, run *Run) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.runs {
		if existing.OrgID == run.OrgID && existing.RuleID == run.RuleID && existing.EventID == run.EventID {
			return false, nil
		}
	}
	m.runs = append(m.runs, *run)
	return true, nil
}

func (m *memRepository) CountRecentRuns(ctx context.Context, f RunCountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.runs {
		if r.OrgID != f.OrgID || r.RuleID != f.RuleID || r.Status == RunStatusSkipped {
			continue
		}
		if r.CreatedAt.Before(f.Since) || r.EventID == f.ExcludeEventID {
			continue
		}
		if f.EntityType != "" && r.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && r.EntityID != f.EntityID {
			continue
		}
		if f.JobID != "" && r.JobID != f.JobID {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memRepository) CountOutboxSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.outbox {
		if e.OrgID == orgID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memRepository) InsertOutboxEntries(ctx context.Context, entries []OutboxEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outboxErr != nil {
		return 0, m.outboxErr
	}

	inserted := 0
next:
	for _, e := range entries {
		for _, existing := range m.outbox {
			if existing.OrgID == e.OrgID && existing.RuleID == e.RuleID &&
				existing.EventID == e.EventID && existing.ActionKey == e.ActionKey {
				continue next
			}
		}
		m.outbox = append(m.outbox, e)
		inserted++
	}
	return inserted, nil
}

func (m *memRepository) ListRuns(ctx context.Context, q RunQuery) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if r.OrgID != q.OrgID {
			continue
		}
		if q.RuleID != "" && r.RuleID != q.RuleID {
			continue
		}
		if q.EntityType != "" && r.EntityType != q.EntityType {
			continue
		}
		if q.EntityID != "" && r.EntityID != q.EntityID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepository) GetRun(ctx context.Context, orgID, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.OrgID == orgID && r.ID == runID {
			run := r
			return &run, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) ListOutboxByRun(ctx context.Context, orgID, runID string) ([]OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxEntry
	for _, e := range m.outbox {
		if e.OrgID == orgID && e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepository) runsFor(ruleID string) []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if r.RuleID == ruleID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memRepository) outboxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox)
}

// entityStore is a map-backed entities.Loader that counts calls.
type entityStore struct {
	mu    sync.Mutex
	data  map[string]map[string]interface{}
	calls map[string]int
}

func newEntityStore() *entityStore {
	return &entityStore{
		data:  make(map[string]map[string]interface{}),
		calls: make(map[string]int),
	}
}

func (s *entityStore) put(kind, id string, entity map[string]interface{}) {
	s.data[kind+":"+id] = entity
}

func (s *entityStore) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind+":"+id]++
	return s.data[kind+":"+id], nil
}

var _ entities.Loader = (*entityStore)(nil)

var testNow = time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC) // Wednesday

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestEngine(t *testing.T, repo Repository, loader entities.Loader, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(repo, loader, cfg, logger.NopLogger(),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs("id")),
	)
	require.NoError(t, err)
	return engine
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

type ruleOpt func(*RuleRecord)

func newRuleRecord(t *testing.T, id, trigger string, opts ...ruleOpt) RuleRecord {
	t.Helper()
	rec := RuleRecord{
		ID:          id,
		OrgID:       "org-1",
		Name:        "rule " + id,
		IsEnabled:   true,
		TriggerType: trigger,
		Version:     1,
		Actions: mustJSON(t, []interface{}{
			map[string]interface{}{
				"id":   "notify",
				"type": "notification.create",
				"params": map[string]interface{}{
					"role":  "dispatcher",
					"title": "Job completed",
				},
			},
		}),
		CreatedAt: testNow.Add(-24 * time.Hour),
		UpdatedAt: testNow.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

func withConditions(t *testing.T, conditions interface{}) ruleOpt {
	return func(r *RuleRecord) { r.Conditions = mustJSON(t, conditions) }
}

func withActions(t *testing.T, actions interface{}) ruleOpt {
	return func(r *RuleRecord) { r.Actions = mustJSON(t, actions) }
}

func withThrottle(t *testing.T, throttle interface{}) ruleOpt {
	return func(r *RuleRecord) { r.Throttle = mustJSON(t, throttle) }
}

func withFilters(t *testing.T, filters interface{}) ruleOpt {
	return func(r *RuleRecord) { r.TriggerFilters = mustJSON(t, filters) }
}
