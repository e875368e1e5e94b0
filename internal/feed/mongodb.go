package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var _ Client = (*MongoClient)(nil)

// MongoClient serves the feed from a MongoDB collection. A subscription
// delivers the ordered collection once, then again after every insert seen on
// the collection's change stream.
type MongoClient struct {
	coll      *mongo.Collection
	publisher EventPublisher
	logger    *zap.SugaredLogger
}

func NewMongoClient(coll *mongo.Collection, publisher EventPublisher, logger *zap.SugaredLogger) *MongoClient {
	return &MongoClient{
		coll:      coll,
		publisher: publisher,
		logger:    logger,
	}
}

func (c *MongoClient) Append(ctx context.Context, msg models.Message) (string, error) {
	doc := bson.M{
		"createdAt": msg.CreatedAt,
		"user":      authorDoc(msg.Author),
	}
	if msg.Text != nil {
		doc["text"] = *msg.Text
	}
	if msg.System {
		doc["system"] = true
	}
	if a := msg.Attachment; a != nil {
		if a.ImageURL != "" {
			doc["image"] = a.ImageURL
		}
		if a.AudioURL != "" {
			doc["audio"] = a.AudioURL
		}
		if a.Location != nil {
			doc["location"] = bson.M{
				"latitude":  a.Location.Latitude,
				"longitude": a.Location.Longitude,
			}
		}
	}

	result, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	id, err := insertedID(result.InsertedID)
	if err != nil {
		return "", err
	}

	if c.publisher != nil {
		msg.ID = id
		if err := c.publisher.PublishMessageSent(ctx, msg); err != nil {
			c.logger.Warnw("publish message.sent failed", "message_id", id, "error", err)
		}
	}
	return id, nil
}

func (c *MongoClient) Subscribe(ctx context.Context, onBatch BatchHandler, onErr ErrorHandler) (Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	stream, err := c.coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &mongoSubscription{cancel: cancel}
	go c.deliver(subCtx, stream, onBatch, onErr)
	return sub, nil
}

func (c *MongoClient) deliver(ctx context.Context, stream *mongo.ChangeStream, onBatch BatchHandler, onErr ErrorHandler) {
	defer stream.Close(context.Background()) //nolint:errcheck

	emit := func() bool {
		docs, err := c.Snapshot(ctx)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			onErr(err)
			return false
		}
		onBatch(docs)
		return true
	}

	if !emit() {
		return
	}
	for stream.Next(ctx) {
		if !emit() {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		onErr(fmt.Errorf("change stream: %w", err))
	}
}

// Snapshot reads the whole collection, newest first.
func (c *MongoClient) Snapshot(ctx context.Context) ([]RawDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := c.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []RawDocument
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		docs = append(docs, RawDocument{ID: asString(m["_id"]), Data: m})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return docs, nil
}

type mongoSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *mongoSubscription) Cancel() {
	s.once.Do(s.cancel)
}

func authorDoc(a models.Author) bson.M {
	doc := bson.M{
		"_id":  a.ID,
		"name": a.DisplayName,
	}
	if a.AvatarRef != nil {
		doc["avatar"] = *a.AvatarRef
	}
	return doc
}

func insertedID(v any) (string, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	case string:
		return id, nil
	}
	return "", fmt.Errorf("invalid inserted id: %T %+v", v, v)
}
