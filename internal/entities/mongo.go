package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"opsflow/internal/constants"
	"opsflow/pkg/metrics"
)

// MongoLoader reads entities from one collection per kind. Documents are
// matched on _id and org_id.
type MongoLoader struct {
	db     *mongo.Database
	tables Tables
}

func NewMongoLoader(db *mongo.Database, tables Tables) *MongoLoader {
	return &MongoLoader{db: db, tables: tables}
}

func (l *MongoLoader) Load(ctx context.Context, orgID, kind, id string) (map[string]interface{}, error) {
	collection, err := l.tables.For(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var doc bson.M
	err = l.db.Collection(collection).FindOne(ctx, bson.M{"_id": id, "org_id": orgID}).Decode(&doc)
	metrics.ObserveEntityLoadDuration(constants.SourceTypeMongoDB, time.Since(start))

	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.IncEntityLoad(kind, constants.SourceTypeMongoDB, "not_found")
		return nil, nil
	}
	if err != nil {
		metrics.IncEntityLoad(kind, constants.SourceTypeMongoDB, "error")
		return nil, fmt.Errorf("mongodb query for %s failed: %w", kind, err)
	}

	entity, err := plainDocument(doc)
	if err != nil {
		metrics.IncEntityLoad(kind, constants.SourceTypeMongoDB, "error")
		return nil, fmt.Errorf("failed to decode %s document: %w", kind, err)
	}

	metrics.IncEntityLoad(kind, constants.SourceTypeMongoDB, "found")
	return entity, nil
}

// plainDocument converts BSON values into the same shapes a JSON row
// produces, so conditions behave identically for both sources.
func plainDocument(doc bson.M) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var entity map[string]interface{}
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, err
	}

	if _, ok := entity["id"]; !ok {
		entity["id"] = entity["_id"]
	}
	return entity, nil
}
