package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"paperdigest/internal/database"
)

// RequestLogStore writes API request records to MongoDB
type RequestLogStore struct {
	collection *mongo.Collection
}

// NewRequestLogStore creates a store on the request_log collection
func NewRequestLogStore(db *database.MongoDB) *RequestLogStore {
	return &RequestLogStore{
		collection: db.Collection(database.CollectionRequestLog),
	}
}

// Insert stores one request record
func (s *RequestLogStore) Insert(ctx context.Context, entry *RequestLog) error {
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

// RecentErrors returns the latest failed requests, newest first
func (s *RequestLogStore) RecentErrors(ctx context.Context, since time.Time, limit int64) ([]RequestLog, error) {
	filter := bson.M{
		"statusCode": bson.M{"$gte": 400},
		"timestamp":  bson.M{"$gte": since},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []RequestLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode request log: %w", err)
	}
	return entries, nil
}
