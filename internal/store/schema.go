package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Migrate creates the indexes both collections rely on.
func (s *Store) Migrate(ctx context.Context) error {
	return ensureIndexes(ctx, s.db)
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	// One config per (strategy, symbol); symbol is nil for the global record.
	_, err := db.Collection(configCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create config index: %w", err)
	}

	// Audit trail queries filter by (strategy, symbol) and sort by time.
	_, err = db.Collection(auditCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}, {Key: "changed_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}
