package records

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database, collName string) (*MongoStore, error) {
	coll := db.Collection(collName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "installId", Value: 1},
			{Key: "kind", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoStore{coll: coll}, nil
}

type rowDoc struct {
	ID         string `bson:"_id"`
	InstallID  string `bson:"installId"`
	Date       string `bson:"date"`
	Kind       string `bson:"kind"`
	Ciphertext []byte `bson:"ct"`
	IV         []byte `bson:"iv"`
	Tag        []byte `bson:"tag"`
	SyncedAt   int64  `bson:"syncedAt"`
}

func docID(installID, date, kind string) string {
	return installID + "|" + date + "|" + kind
}

func toDoc(r Row) rowDoc {
	return rowDoc{
		ID:         docID(r.InstallID, r.Date, r.Kind),
		InstallID:  r.InstallID,
		Date:       r.Date,
		Kind:       r.Kind,
		Ciphertext: r.Ciphertext,
		IV:         r.IV,
		Tag:        r.Tag,
		SyncedAt:   r.SyncedAt.Unix(),
	}
}

func fromDoc(d rowDoc) Row {
	return Row{
		InstallID:  d.InstallID,
		Date:       d.Date,
		Kind:       d.Kind,
		Ciphertext: d.Ciphertext,
		IV:         d.IV,
		Tag:        d.Tag,
		SyncedAt:   time.Unix(d.SyncedAt, 0).UTC(),
	}
}

// UpsertBatch submits the whole sync batch as one ordered bulk write, so
// a partial failure aborts the remainder instead of interleaving.
func (s *MongoStore) UpsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		doc := toDoc(r)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return err
}

func (s *MongoStore) Get(ctx context.Context, installID, date, kind string) (*Row, error) {
	var doc rowDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(installID, date, kind)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	row := fromDoc(doc)
	return &row, nil
}

func (s *MongoStore) Range(ctx context.Context, installID, kind, from, to string) ([]Row, error) {
	filter := bson.M{
		"installId": installID,
		"kind":      kind,
		"date":      bson.M{"$gte": from, "$lte": to},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Row
	for cur.Next(ctx) {
		var doc rowDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDoc(doc))
	}
	return out, cur.Err()
}

func (s *MongoStore) PurgeBefore(ctx context.Context, installID, cutoff string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"installId": installID,
		"date":      bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteInstall(ctx context.Context, installID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"installId": installID})
	return err
}
