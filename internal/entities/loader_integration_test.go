//go:build integration

package entities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"opsflow/internal/logger"
	"opsflow/internal/testutil"
	"opsflow/pkg/migrations"
)

func TestPostgresLoader(t *testing.T) {
	db := testutil.MigratedPostgres(t)
	ctx := context.Background()

	_, err := db.Exec(`
		INSERT INTO jobs (id, org_id, title, status, priority, total)
		VALUES ('J1', 'org-1', 'Gutter cleaning', 'completed', 'high', 240.50)`)
	require.NoError(t, err)

	loader := NewPostgresLoader(db, NewTables(nil))

	job, err := loader.Load(ctx, "org-1", KindJob, "J1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "J1", job["id"])
	assert.Equal(t, "completed", job["status"])
	assert.Equal(t, "high", job["priority"])
	assert.Equal(t, 240.5, job["total"])

	job, err = loader.Load(ctx, "org-2", KindJob, "J1")
	require.NoError(t, err)
	assert.Nil(t, job)

	_, err = loader.Load(ctx, "org-1", "invoice", "I1")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestMongoLoader(t *testing.T) {
	mdb := testutil.Mongo(t)
	ctx := context.Background()
	tables := NewTables(nil)

	require.NoError(t, migrations.EnsureEntityIndexes(ctx, mdb, tables.Names()))
	// a second pass over existing indexes is a no-op
	require.NoError(t, migrations.EnsureEntityIndexes(ctx, mdb, tables.Names()))

	cursor, err := mdb.Collection("jobs").Indexes().List(ctx)
	require.NoError(t, err)
	var indexes []bson.M
	require.NoError(t, cursor.All(ctx, &indexes))
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		names = append(names, idx["name"].(string))
	}
	assert.Contains(t, names, "idx_jobs_org_id")
	assert.Contains(t, names, "idx_jobs_org_updated_at")

	_, err = mdb.Collection("materials").InsertOne(ctx, bson.M{
		"_id":      "M1",
		"org_id":   "org-1",
		"name":     "Shingles",
		"quantity": 12,
	})
	require.NoError(t, err)

	loader := NewMongoLoader(mdb, tables)

	material, err := loader.Load(ctx, "org-1", KindMaterial, "M1")
	require.NoError(t, err)
	require.NotNil(t, material)
	assert.Equal(t, "M1", material["id"])
	assert.Equal(t, "Shingles", material["name"])
	assert.Equal(t, float64(12), material["quantity"])

	material, err = loader.Load(ctx, "org-2", KindMaterial, "M1")
	require.NoError(t, err)
	assert.Nil(t, material)
}

func TestCachedLoader_Redis(t *testing.T) {
	client := testutil.Redis(t)
	ctx := context.Background()

	calls := 0
	source := LoaderFunc(func(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
		calls++
		if id == "missing" {
			return nil, nil
		}
		return map[string]interface{}{"id": id, "status": "scheduled"}, nil
	})

	loader := NewCachedLoader(source, client, time.Minute, logger.NopLogger())

	for i := 0; i < 2; i++ {
		job, err := loader.Load(ctx, "org-1", KindJob, "J1")
		require.NoError(t, err)
		assert.Equal(t, "scheduled", job["status"])
	}
	assert.Equal(t, 1, calls)

	ttl, err := client.TTL(ctx, CacheKey("org-1", KindJob, "J1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	for i := 0; i < 2; i++ {
		job, err := loader.Load(ctx, "org-1", KindJob, "missing")
		require.NoError(t, err)
		assert.Nil(t, job)
	}
	assert.Equal(t, 2, calls)

	require.NoError(t, loader.Invalidate(ctx, "org-1", KindJob, "J1"))
	_, err = loader.Load(ctx, "org-1", KindJob, "J1")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
