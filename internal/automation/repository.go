package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "opsflow/pkg/errors"
	"opsflow/pkg/metrics"
)

// Repository is the store for rules, runs and outbox entries. Every call is
// scoped by org id. InsertRun and InsertOutboxEntries must be idempotent on
// their natural keys.
type Repository interface {
	ListRulesForTrigger(ctx context.Context, orgID, triggerType string) ([]RuleRecord, error)
	GetRule(ctx context.Context, orgID, ruleID string) (*RuleRecord, error)
	// InsertRun reports false when a run for (org, rule, event) already exists.
	InsertRun(ctx context.Context, run *Run) (bool, error)
	CountRecentRuns(ctx context.Context, filter RunCountFilter) (int, error)
	CountOutboxSince(ctx context.Context, orgID string, since time.Time) (int, error)
	// InsertOutboxEntries returns how many entries were new.
	InsertOutboxEntries(ctx context.Context, entries []OutboxEntry) (int, error)
	ListRuns(ctx context.Context, query RunQuery) ([]Run, error)
	GetRun(ctx context.Context, orgID, runID string) (*Run, error)
	ListOutboxByRun(ctx context.Context, orgID, runID string) ([]OutboxEntry, error)
}

var ErrNotFound = apperrors.ErrNotFound

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

// observe records query metrics; use as defer observe("op")(&err).
func observe(operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		status := "success"
		if errp != nil && *errp != nil {
			status = "error"
		}
		metrics.IncDatabaseQuery("automation", "postgresql", operation, status)
		metrics.ObserveDatabaseQueryDuration("automation", "postgresql", operation, time.Since(start))
	}
}

func (r *PostgresRepository) ListRulesForTrigger(ctx context.Context, orgID, triggerType string) (rules []RuleRecord, err error) {
	defer observe("list_rules")(&err)

	query := `
		SELECT id, org_id, name, is_enabled, trigger_type, trigger_filters, conditions, actions,
		       throttle, version, created_at, updated_at, deleted_at
		FROM automation_rules
		WHERE org_id = $1
		  AND trigger_type = $2
		  AND is_enabled = true
		  AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, *rule)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

func (r *PostgresRepository) GetRule(ctx context.Context, orgID, ruleID string) (*RuleRecord, error) {
	query := `
		SELECT id, org_id, name, is_enabled, trigger_type, trigger_filters, conditions, actions,
		       throttle, version, created_at, updated_at, deleted_at
		FROM automation_rules
		WHERE org_id = $1 AND id = $2 AND deleted_at IS NULL
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, orgID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*RuleRecord, error) {
	var (
		rule                                       RuleRecord
		filters, conditions, actions, throttleJSON []byte
		deletedAt                                  sql.NullTime
	)
	err := row.Scan(
		&rule.ID,
		&rule.OrgID,
		&rule.Name,
		&rule.IsEnabled,
		&rule.TriggerType,
		&filters,
		&conditions,
		&actions,
		&throttleJSON,
		&rule.Version,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.TriggerFilters = filters
	rule.Conditions = conditions
	rule.Actions = actions
	rule.Throttle = throttleJSON
	if deletedAt.Valid {
		rule.DeletedAt = &deletedAt.Time
	}
	return &rule, nil
}

func (r *PostgresRepository) InsertRun(ctx context.Context, run *Run) (inserted bool, err error) {
	defer observe("insert_run")(&err)

	logs, err := json.Marshal(run.Logs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run logs: %w", err)
	}
	snapshot, err := json.Marshal(run.Snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run snapshot: %w", err)
	}

	query := `
		INSERT INTO automation_runs (
			id, org_id, rule_id, rule_version, event_id, event_type, parent_event_id,
			entity_type, entity_id, job_id, status, reason, logs, snapshot, lineage_depth,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (org_id, rule_id, event_id) DO NOTHING
		RETURNING id
	`

	var id string
	err = r.db.QueryRowContext(ctx, query,
		run.ID,
		run.OrgID,
		run.RuleID,
		run.RuleVersion,
		run.EventID,
		run.EventType,
		nullString(run.ParentEventID),
		nullString(run.EntityType),
		nullString(run.EntityID),
		nullString(run.JobID),
		string(run.Status),
		nullString(run.Reason),
		string(logs),
		string(snapshot),
		run.LineageDepth,
		run.CreatedAt,
		run.UpdatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert run: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) CountRecentRuns(ctx context.Context, filter RunCountFilter) (count int, err error) {
	defer observe("count_runs")(&err)

	conditions := []string{"org_id = $1", "rule_id = $2", "created_at >= $3", "status <> 'skipped'"}
	args := []interface{}{filter.OrgID, filter.RuleID, filter.Since}

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if filter.ExcludeEventID != "" {
		args = append(args, filter.ExcludeEventID)
		conditions = append(conditions, fmt.Sprintf("event_id <> $%d", len(args)))
	}

	query := "SELECT COUNT(*) FROM automation_runs WHERE " + strings.Join(conditions, " AND ")
	if err = r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) CountOutboxSince(ctx context.Context, orgID string, since time.Time) (count int, err error) {
	defer observe("count_outbox")(&err)

	query := `SELECT COUNT(*) FROM action_outbox WHERE org_id = $1 AND created_at >= $2`
	if err = r.db.QueryRowContext(ctx, query, orgID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) InsertOutboxEntries(ctx context.Context, entries []OutboxEntry) (inserted int, err error) {
	if len(entries) == 0 {
		return 0, nil
	}
	defer observe("insert_outbox")(&err)

	const columns = 11
	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*columns)

	for i, e := range entries {
		base := i * columns
		ph := make([]string, columns)
		for c := 0; c < columns; c++ {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")

		payload := e.ActionPayload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		args = append(args,
			e.ID,
			e.OrgID,
			e.RunID,
			e.RuleID,
			e.EventID,
			string(e.ActionType),
			e.ActionKey,
			string(payload),
			string(e.Status),
			e.NextAttemptAt,
			e.CreatedAt,
		)
	}

	query := `
		INSERT INTO action_outbox (
			id, org_id, run_id, rule_id, event_id, action_type, action_key, action_payload,
			status, next_attempt_at, created_at
		)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (org_id, rule_id, event_id, action_key) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert outbox entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted outbox count: %w", err)
	}
	return int(affected), nil
}

const runColumns = `
	id, org_id, rule_id, rule_version, event_id, event_type, parent_event_id, entity_type,
	entity_id, job_id, status, reason, logs, snapshot, lineage_depth, created_at, updated_at
`

func (r *PostgresRepository) ListRuns(ctx context.Context, q RunQuery) (runs []Run, err error) {
	defer observe("list_runs")(&err)

	conditions := []string{"org_id = $1"}
	args := []interface{}{q.OrgID}

	if q.RuleID != "" {
		args = append(args, q.RuleID)
		conditions = append(conditions, fmt.Sprintf("rule_id = $%d", len(args)))
	}
	if q.EntityType != "" {
		args = append(args, q.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if q.EntityID != "" {
		args = append(args, q.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}

	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM automation_runs WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		runColumns, strings.Join(conditions, " AND "), len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs = make([]Run, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, *run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return runs, nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, orgID, runID string) (*Run, error) {
	query := "SELECT " + runColumns + " FROM automation_runs WHERE org_id = $1 AND id = $2"
	run, err := scanRun(r.db.QueryRowContext(ctx, query, orgID, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                                                Run
		status                                             string
		parentEventID, entityType, entityID, jobID, reason sql.NullString
		logs, snapshot                                     []byte
	)
	err := row.Scan(
		&run.ID,
		&run.OrgID,
		&run.RuleID,
		&run.RuleVersion,
		&run.EventID,
		&run.EventType,
		&parentEventID,
		&entityType,
		&entityID,
		&jobID,
		&status,
		&reason,
		&logs,
		&snapshot,
		&run.LineageDepth,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = RunStatus(status)
	run.ParentEventID = parentEventID.String
	run.EntityType = entityType.String
	run.EntityID = entityID.String
	run.JobID = jobID.String
	run.Reason = reason.String

	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &run.Logs); err != nil {
			return nil, fmt.Errorf("failed to decode run logs: %w", err)
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &run.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode run snapshot: %w", err)
		}
	}
	return &run, nil
}

func (r *PostgresRepository) ListOutboxByRun(ctx context.Context, orgID, runID string) (entries []OutboxEntry, err error) {
	defer observe("list_outbox")(&err)

	query := `
		SELECT id, org_id, run_id, rule_id, event_id, action_type, action_key, action_payload,
		       status, attempts, last_error, next_attempt_at, provider_message_id, created_at
		FROM action_outbox
		WHERE org_id = $1 AND run_id = $2
		ORDER BY created_at ASC, action_key ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox entries: %w", err)
	}
	defer rows.Close()

	entries = make([]OutboxEntry, 0)
	for rows.Next() {
		var (
			e                    OutboxEntry
			actionType, status   string
			payload              []byte
			lastError, messageID sql.NullString
			nextAttemptAt        sql.NullTime
		)
		if err = rows.Scan(
			&e.ID,
			&e.OrgID,
			&e.RunID,
			&e.RuleID,
			&e.EventID,
			&actionType,
			&e.ActionKey,
			&payload,
			&status,
			&e.Attempts,
			&lastError,
			&nextAttemptAt,
			&messageID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.ActionType = ActionType(actionType)
		e.ActionPayload = payload
		e.Status = OutboxStatus(status)
		e.LastError = lastError.String
		e.ProviderMessageID = messageID.String
		if nextAttemptAt.Valid {
			at := nextAttemptAt.Time
			e.NextAttemptAt = &at
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
