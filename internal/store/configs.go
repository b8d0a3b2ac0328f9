package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/quantfeed/strategyd/internal/strategyconfig"
)

// configDoc is the persisted form of a strategy configuration. A nil symbol
// marks the global record.
type configDoc struct {
	StrategyID string         `bson:"strategy_id"`
	Symbol     *string        `bson:"symbol"`
	Parameters map[string]any `bson:"parameters"`
	Version    int            `bson:"version"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
	CreatedBy  string         `bson:"created_by"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
}

func symbolFilter(symbol string) any {
	if symbol == "" {
		return nil
	}
	return symbol
}

func configFilter(strategyID, symbol string) bson.M {
	return bson.M{"strategy_id": strategyID, "symbol": symbolFilter(symbol)}
}

// GetConfig returns the config for (strategy, symbol), nil when absent.
// An empty symbol selects the global record.
func (s *Store) GetConfig(ctx context.Context, strategyID, symbol string) (*strategyconfig.StoredConfig, error) {
	var doc configDoc
	err := s.db.Collection(configCollection).FindOne(ctx, configFilter(strategyID, symbol)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s/%s: %w", strategyID, symbol, err)
	}
	return docToConfig(&doc), nil
}

// UpsertConfig replaces the (strategy, symbol) record with cfg.
func (s *Store) UpsertConfig(ctx context.Context, cfg *strategyconfig.StoredConfig) error {
	doc := configDoc{
		StrategyID: cfg.StrategyID,
		Parameters: cfg.Parameters,
		Version:    cfg.Version,
		CreatedAt:  cfg.CreatedAt,
		UpdatedAt:  cfg.UpdatedAt,
		CreatedBy:  cfg.CreatedBy,
		Metadata:   cfg.Metadata,
	}
	if cfg.Symbol != "" {
		doc.Symbol = &cfg.Symbol
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(configCollection).ReplaceOne(ctx, configFilter(cfg.StrategyID, cfg.Symbol), doc, opts)
	if err != nil {
		return fmt.Errorf("upsert config %s/%s: %w", cfg.StrategyID, cfg.Symbol, err)
	}
	return nil
}

// DeleteConfig removes the (strategy, symbol) record.
func (s *Store) DeleteConfig(ctx context.Context, strategyID, symbol string) error {
	res, err := s.db.Collection(configCollection).DeleteOne(ctx, configFilter(strategyID, symbol))
	if err != nil {
		return fmt.Errorf("delete config %s/%s: %w", strategyID, symbol, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete config %s/%s: %w", strategyID, symbol, strategyconfig.ErrNotFound)
	}
	return nil
}

// ListSymbolOverrides returns the symbols that carry an override for a
// strategy.
func (s *Store) ListSymbolOverrides(ctx context.Context, strategyID string) ([]string, error) {
	filter := bson.M{"strategy_id": strategyID, "symbol": bson.M{"$ne": nil}}
	opts := options.Find().SetSort(bson.D{{Key: "symbol", Value: 1}})
	cursor, err := s.db.Collection(configCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list overrides %s: %w", strategyID, err)
	}
	defer cursor.Close(ctx)

	symbols := []string{}
	for cursor.Next(ctx) {
		var doc configDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode override: %w", err)
		}
		if doc.Symbol != nil {
			symbols = append(symbols, *doc.Symbol)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return symbols, nil
}

func docToConfig(doc *configDoc) *strategyconfig.StoredConfig {
	cfg := &strategyconfig.StoredConfig{
		StrategyID: doc.StrategyID,
		Parameters: doc.Parameters,
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		CreatedBy:  doc.CreatedBy,
		Metadata:   doc.Metadata,
	}
	if doc.Symbol != nil {
		cfg.Symbol = *doc.Symbol
	}
	return cfg
}
