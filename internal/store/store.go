// Package store implements the configuration document store on MongoDB.
// Only the operations the configuration manager needs are exposed; the
// audit collection in particular has no update path, which is what keeps
// audit records immutable.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	configCollection = "strategy_configs"
	auditCollection  = "strategy_config_audit"
)

// Store wraps the MongoDB client and database.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	log       zerolog.Logger
	connected atomic.Bool
}

// Connect dials MongoDB and returns a Store. The URI should include the
// database name (e.g. mongodb://localhost:27017/strategies); "strategies"
// is used when none is present.
func Connect(ctx context.Context, uri string, log zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := "strategies"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	s := &Store{
		client: client,
		db:     client.Database(dbName),
		log:    log.With().Str("component", "store").Logger(),
	}
	s.connected.Store(true)
	s.log.Info().Str("database", dbName).Msg("connected to MongoDB")
	return s, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) {
	s.connected.Store(false)
	s.client.Disconnect(ctx)
}

// Connected reports whether the store is usable for writes.
func (s *Store) Connected() bool {
	return s.connected.Load()
}

// Ping verifies the connection is still alive and updates the connected flag.
func (s *Store) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx, nil)
	s.connected.Store(err == nil)
	return err
}
