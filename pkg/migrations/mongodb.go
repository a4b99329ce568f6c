package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EntityIndexes returns the indexes every entity collection carries. Loads
// filter on (_id, org_id); org-wide scans use org_id alone.
func EntityIndexes(collection string) []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "org_id", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_" + collection + "_org_id"),
		},
		{
			Keys:    bson.D{{Key: "org_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_" + collection + "_org_updated_at"),
		},
	}
}

// EnsureEntityIndexes creates the entity indexes on each collection. Missing
// collections are created implicitly by MongoDB.
func EnsureEntityIndexes(ctx context.Context, db *mongo.Database, collections []string) error {
	for _, name := range collections {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, EntityIndexes(name))
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
