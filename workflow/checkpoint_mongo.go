package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoCheckpointDoc is the document shape stored in MongoDB. The full
// checkpoint rides along as JSON so state values survive round-tripping
// without BSON type surprises.
type mongoCheckpointDoc struct {
	CheckpointID string    `bson:"checkpoint_id"`
	ThreadID     string    `bson:"thread_id"`
	Version      int       `bson:"version"`
	Workflow     string    `bson:"workflow"`
	NodeID       string    `bson:"node_id"`
	Payload      []byte    `bson:"payload"`
	CreatedAt    time.Time `bson:"created_at"`
}

// MongoCheckpointStore persists checkpoints in a MongoDB collection.
type MongoCheckpointStore struct {
	coll *mongo.Collection
}

// NewMongoCheckpointStore wraps a collection and ensures the thread+version
// index exists.
func NewMongoCheckpointStore(ctx context.Context, coll *mongo.Collection) (*MongoCheckpointStore, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint index: %w", err)
	}
	return &MongoCheckpointStore{coll: coll}, nil
}

// ConnectMongoCheckpointStore dials MongoDB and returns a store over the
// given database and collection.
func ConnectMongoCheckpointStore(ctx context.Context, uri, database, collection string) (*MongoCheckpointStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return NewMongoCheckpointStore(ctx, client.Database(database).Collection(collection))
}

func (s *MongoCheckpointStore) Save(cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint missing thread ID")
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	doc := mongoCheckpointDoc{
		CheckpointID: cp.ID,
		ThreadID:     cp.ThreadID,
		Version:      cp.Version,
		Workflow:     cp.Workflow,
		NodeID:       cp.NodeID,
		Payload:      payload,
		CreatedAt:    cp.CreatedAt,
	}

	// Filtering on the checkpoint ID means a re-save (rollback relabeling)
	// replaces its own document, while a racing writer's upsert trips the
	// unique thread+version index and reports a conflict.
	ctx := context.Background()
	filter := bson.D{
		{Key: "thread_id", Value: cp.ThreadID},
		{Key: "version", Value: cp.Version},
		{Key: "checkpoint_id", Value: cp.ID},
	}
	_, err = s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("thread %s version %d: %w", cp.ThreadID, cp.Version, ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *MongoCheckpointStore) Get(threadID string, version int) (*Checkpoint, error) {
	ctx := context.Background()
	filter := bson.D{{Key: "thread_id", Value: threadID}, {Key: "version", Value: version}}

	var doc mongoCheckpointDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeMongoDoc(&doc)
}

func (s *MongoCheckpointStore) Latest(threadID string) (*Checkpoint, error) {
	ctx := context.Background()
	filter := bson.D{{Key: "thread_id", Value: threadID}}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	var doc mongoCheckpointDoc
	err := s.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeMongoDoc(&doc)
}

func (s *MongoCheckpointStore) List(threadID string) ([]*Checkpoint, error) {
	ctx := context.Background()
	filter := bson.D{{Key: "thread_id", Value: threadID}}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var cps []*Checkpoint
	for cursor.Next(ctx) {
		var doc mongoCheckpointDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		cp, err := decodeMongoDoc(&doc)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, cursor.Err()
}

func (s *MongoCheckpointStore) Delete(threadID string, version int) error {
	ctx := context.Background()
	filter := bson.D{{Key: "thread_id", Value: threadID}, {Key: "version", Value: version}}

	result, err := s.coll.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}
	return nil
}

func (s *MongoCheckpointStore) DeleteThread(threadID string) error {
	ctx := context.Background()
	filter := bson.D{{Key: "thread_id", Value: threadID}}

	result, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete thread checkpoints: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	return nil
}

func decodeMongoDoc(doc *mongoCheckpointDoc) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(doc.Payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", doc.CheckpointID, err)
	}
	return &cp, nil
}
