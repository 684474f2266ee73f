// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	analyticsConnectTimeout = 10 * time.Second
	analyticsWriteTimeout   = 5 * time.Second
)

// Analytics event types.
const (
	EventPlan            = "plan"
	EventViolation       = "violation"
	EventBudgetExhausted = "budget_exhausted"
)

// AnalyticsEvent is one record emitted to the analytics sink.
type AnalyticsEvent struct {
	Type      string                 `bson:"type" json:"type"`
	TenantID  string                 `bson:"tenant_id" json:"tenant_id"`
	RequestID string                 `bson:"request_id" json:"request_id"`
	Payload   map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
}

// AnalyticsSink receives plan/violation/settlement events. Callers emit
// fire-and-forget; a sink failure never fails a request.
type AnalyticsSink interface {
	Emit(ctx context.Context, event *AnalyticsEvent) error
}

// MongoSink writes analytics events to a MongoDB collection.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects to MongoDB and verifies the connection
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, analyticsConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to analytics store: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping analytics store: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection("events"),
	}, nil
}

// Emit inserts one event
func (s *MongoSink) Emit(ctx context.Context, event *AnalyticsEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(ctx, analyticsWriteTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(writeCtx, event); err != nil {
		return fmt.Errorf("failed to emit analytics event: %w", err)
	}
	return nil
}

// Close disconnects the client
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
