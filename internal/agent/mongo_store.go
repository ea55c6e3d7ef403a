package agent

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoKeyStore stores the key record and its install mapping as one
// document keyed by install id, with a unique index on apiKey standing in
// for the reverse index. One document means the pair can never be
// half-written, which closes the consistency bug class outright.
type MongoKeyStore struct {
	coll *mongo.Collection
}

func NewMongoKeyStore(ctx context.Context, db *mongo.Database, collName string) (*MongoKeyStore, error) {
	coll := db.Collection(collName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "apiKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoKeyStore{coll: coll}, nil
}

type keyDoc struct {
	InstallID  string `bson:"_id"`
	APIKey     string `bson:"apiKey"`
	WrappedDEK []byte `bson:"wrappedDek"`
	CreatedAt  int64  `bson:"createdAt"`
}

func (d keyDoc) record() *KeyRecord {
	return &KeyRecord{
		APIKey:     d.APIKey,
		InstallID:  d.InstallID,
		WrappedDEK: d.WrappedDEK,
		CreatedAt:  time.Unix(d.CreatedAt, 0).UTC(),
	}
}

func (s *MongoKeyStore) Replace(ctx context.Context, rec KeyRecord) error {
	doc := keyDoc{
		InstallID:  rec.InstallID,
		APIKey:     rec.APIKey,
		WrappedDEK: rec.WrappedDEK,
		CreatedAt:  rec.CreatedAt.Unix(),
	}
	_, err := s.coll.ReplaceOne(
		ctx,
		bson.M{"_id": rec.InstallID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoKeyStore) GetByKey(ctx context.Context, apiKey string) (*KeyRecord, error) {
	return s.findOne(ctx, bson.M{"apiKey": apiKey})
}

func (s *MongoKeyStore) GetByInstall(ctx context.Context, installID string) (*KeyRecord, error) {
	return s.findOne(ctx, bson.M{"_id": installID})
}

func (s *MongoKeyStore) DeleteByInstall(ctx context.Context, installID string) (*KeyRecord, error) {
	var doc keyDoc
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": installID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errStoreMiss
	}
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (s *MongoKeyStore) findOne(ctx context.Context, filter bson.M) (*KeyRecord, error) {
	var doc keyDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errStoreMiss
	}
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}
