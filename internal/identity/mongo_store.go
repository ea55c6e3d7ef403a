package identity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstallStore struct {
	coll *mongo.Collection
}

func NewMongoInstallStore(db *mongo.Database, collName string) *MongoInstallStore {
	return &MongoInstallStore{coll: db.Collection(collName)}
}

func (s *MongoInstallStore) Put(ctx context.Context, id string, publicKey []byte) error {
	if id == "" {
		return errors.New("identity: empty install id")
	}
	_, err := s.coll.UpdateByID(
		ctx,
		id,
		bson.M{
			"$set": bson.M{
				"publicKey": publicKey,
			},
			"$setOnInsert": bson.M{
				"createdAt": time.Now(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoInstallStore) Get(ctx context.Context, id string) (*Install, error) {
	var doc struct {
		ID        string    `bson:"_id"`
		PublicKey []byte    `bson:"publicKey"`
		CreatedAt time.Time `bson:"createdAt"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInstallNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Install{ID: doc.ID, PublicKey: doc.PublicKey, CreatedAt: doc.CreatedAt}, nil
}
