package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"opsflow/internal/constants"
	"opsflow/pkg/metrics"
)

type PostgresLoader struct {
	db     *sql.DB
	tables Tables
}

func NewPostgresLoader(db *sql.DB, tables Tables) *PostgresLoader {
	return &PostgresLoader{db: db, tables: tables}
}

func (l *PostgresLoader) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	table, err := l.tables.For(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT row_to_json(t) FROM %s t WHERE t.org_id = $1 AND t.id::text = $2 LIMIT 1`,
		pq.QuoteIdentifier(table),
	)

	start := time.Now()
	var raw []byte
	err = l.db.QueryRowContext(ctx, query, orgID, id).Scan(&raw)
	metrics.ObserveEntityLoadDuration(constants.SourceTypePostgreSQL, time.Since(start))

	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncEntityLoad(kind, constants.SourceTypePostgreSQL, "not_found")
		return nil, nil
	}
	if err != nil {
		metrics.IncEntityLoad(kind, constants.SourceTypePostgreSQL, "error")
		return nil, fmt.Errorf("postgresql query for %s failed: %w", kind, err)
	}

	var entity map[string]interface{}
	if err := json.Unmarshal(raw, &entity); err != nil {
		metrics.IncEntityLoad(kind, constants.SourceTypePostgreSQL, "error")
		return nil, fmt.Errorf("failed to decode %s row: %w", kind, err)
	}

	metrics.IncEntityLoad(kind, constants.SourceTypePostgreSQL, "found")
	return entity, nil
}
