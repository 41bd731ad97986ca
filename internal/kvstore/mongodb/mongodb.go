// Package mongodb implements kvstore.Store on a MongoDB collection.
package mongodb

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gofm/gofm/internal/kvstore"
)

// document is the stored shape of one key. The space field namespaces
// multiple logical containers inside one collection.
type document struct {
	Key     string    `bson:"_id"`
	Space   string    `bson:"space"`
	Data    []byte    `bson:"data"`
	Size    int64     `bson:"size"`
	ModTime time.Time `bson:"mtime"`
}

// Store implements kvstore.Store using MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	space      string
}

// New connects to MongoDB and prepares the collection.
func New(uri, database, collection, space string) (*Store, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(context.Background(), nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "space", Value: 1},
			{Key: "_id", Value: 1},
		},
	}
	coll.Indexes().CreateOne(context.Background(), indexModel)

	return &Store{client: client, collection: coll, space: space}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]kvstore.Entry, error) {
	filter := bson.M{
		"space": s.space,
		"_id":   bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []kvstore.Entry
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		entries = append(entries, kvstore.Entry{Key: doc.Key, Size: doc.Size, ModTime: doc.ModTime})
	}
	return entries, cursor.Err()
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	var doc document
	err := s.collection.FindOne(ctx, s.filter(key)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return doc.Data, nil
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	doc := document{
		Key:     key,
		Space:   s.space,
		Data:    data,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, s.filter(key), doc, opts)
	if err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	result, err := s.collection.DeleteOne(ctx, s.filter(key))
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	return nil
}

// Rename re-inserts the document under the new key and removes the old
// one. The _id field cannot be updated in place.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	var doc document
	err := s.collection.FindOne(ctx, s.filter(oldKey)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}

	doc.Key = newKey
	doc.ModTime = time.Now()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, s.filter(newKey), doc, opts); err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}
	if _, err := s.collection.DeleteOne(ctx, s.filter(oldKey)); err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (kvstore.Entry, error) {
	var doc document
	opts := options.FindOne().SetProjection(bson.M{"data": 0})
	err := s.collection.FindOne(ctx, s.filter(key), opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return kvstore.Entry{}, fmt.Errorf("key not found: %w", os.ErrNotExist)
	}
	if err != nil {
		return kvstore.Entry{}, fmt.Errorf("failed to stat key: %w", err)
	}
	return kvstore.Entry{Key: doc.Key, Size: doc.Size, ModTime: doc.ModTime}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, s.filter(key))
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}

// Close closes the MongoDB connection.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) filter(key string) bson.M {
	return bson.M{"_id": key, "space": s.space}
}
