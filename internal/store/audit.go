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

// auditDoc is the persisted form of one audit record. Inserted once, never
// updated.
type auditDoc struct {
	ID            bson.ObjectID  `bson:"_id,omitempty"`
	StrategyID    string         `bson:"strategy_id"`
	Symbol        *string        `bson:"symbol"`
	Action        string         `bson:"action"`
	OldParameters map[string]any `bson:"old_parameters"`
	NewParameters map[string]any `bson:"new_parameters"`
	ChangedBy     string         `bson:"changed_by"`
	ChangedAt     time.Time      `bson:"changed_at"`
	Reason        string         `bson:"reason,omitempty"`
}

// CreateAuditRecord inserts one audit record and returns its id.
func (s *Store) CreateAuditRecord(ctx context.Context, rec *strategyconfig.AuditRecord) (string, error) {
	doc := auditDoc{
		StrategyID:    rec.StrategyID,
		Action:        rec.Action,
		OldParameters: rec.OldParameters,
		NewParameters: rec.NewParameters,
		ChangedBy:     rec.ChangedBy,
		ChangedAt:     rec.ChangedAt,
		Reason:        rec.Reason,
	}
	if rec.Symbol != "" {
		doc.Symbol = &rec.Symbol
	}

	res, err := s.db.Collection(auditCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert audit record: %w", err)
	}
	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected audit id type %T", res.InsertedID)
	}
	return id.Hex(), nil
}

// GetAuditTrail returns audit records for (strategy, symbol), most recent
// first.
func (s *Store) GetAuditTrail(ctx context.Context, strategyID, symbol string, limit int) ([]strategyconfig.AuditRecord, error) {
	filter := bson.M{"strategy_id": strategyID, "symbol": symbolFilter(symbol)}
	opts := options.Find().
		SetSort(bson.D{{Key: "changed_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(auditCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer cursor.Close(ctx)

	records := []strategyconfig.AuditRecord{}
	for cursor.Next(ctx) {
		var doc auditDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		records = append(records, docToAudit(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit trail: %w", err)
	}
	return records, nil
}

// GetAuditRecordByID looks up one audit record by hex id. Returns nil when
// absent or when the id is not a valid ObjectID.
func (s *Store) GetAuditRecordByID(ctx context.Context, id string) (*strategyconfig.AuditRecord, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc auditDoc
	err = s.db.Collection(auditCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record %s: %w", id, err)
	}
	rec := docToAudit(&doc)
	return &rec, nil
}

// GetAuditRecordByVersion returns the audit record that produced the given
// version: the N-th CREATE/UPDATE record for (strategy, symbol) in
// chronological order.
func (s *Store) GetAuditRecordByVersion(ctx context.Context, strategyID string, version int, symbol string) (*strategyconfig.AuditRecord, error) {
	if version < 1 {
		return nil, nil
	}
	filter := bson.M{
		"strategy_id": strategyID,
		"symbol":      symbolFilter(symbol),
		"action":      bson.M{"$in": bson.A{strategyconfig.ActionCreate, strategyconfig.ActionUpdate}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "changed_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(version - 1)).
		SetLimit(1)

	cursor, err := s.db.Collection(auditCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query audit by version: %w", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("iterate audit by version: %w", err)
		}
		return nil, nil
	}
	var doc auditDoc
	if err := cursor.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	rec := docToAudit(&doc)
	return &rec, nil
}

func docToAudit(doc *auditDoc) strategyconfig.AuditRecord {
	rec := strategyconfig.AuditRecord{
		ID:            doc.ID.Hex(),
		StrategyID:    doc.StrategyID,
		Action:        doc.Action,
		OldParameters: doc.OldParameters,
		NewParameters: doc.NewParameters,
		ChangedBy:     doc.ChangedBy,
		ChangedAt:     doc.ChangedAt,
		Reason:        doc.Reason,
	}
	if doc.Symbol != nil {
		rec.Symbol = *doc.Symbol
	}
	return rec
}
