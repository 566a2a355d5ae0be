// Package searchindex stores each document as one MongoDB record and turns
// find filters into a conjunctive query.
package searchindex

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"metarepo/internal/model"
	"metarepo/internal/repository"
)

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// record keys the stored document by docId so inserts fail on collision.
type record struct {
	ID             string `bson:"_id"`
	model.Document `bson:",inline"`
}

// Store is the search-index implementation of repository.DocumentRepository.
type Store struct {
	coll   collection
	raw    *mongo.Collection
	client *mongo.Client
	log    *zap.Logger
}

var _ repository.DocumentRepository = (*Store)(nil)

// New binds the store to name in db. Writes wait for a majority and reads go
// to the primary so a find issued after an update sees it.
func New(db *mongo.Database, name string, log *zap.Logger) *Store {
	coll := db.Collection(name, options.Collection().
		SetWriteConcern(writeconcern.Majority()).
		SetReadPreference(readpref.Primary()))
	return &Store{
		coll:   coll,
		raw:    coll,
		client: db.Client(),
		log:    log.With(zap.String("component", "searchindex")),
	}
}

func newWithCollection(coll collection, log *zap.Logger) *Store {
	return &Store{coll: coll, log: log.With(zap.String("component", "searchindex"))}
}

// EnsureIndexes creates the secondary indexes used by tenant-scoped finds.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s.raw == nil {
		return nil
	}
	_, err := s.raw.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "siteMetadata.tenant", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "docSetId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, filters repository.Filters, allowedGroups []string, page int) ([]model.Document, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(repository.Offset(page))).
		SetLimit(int64(repository.PageSize))

	cur, err := s.coll.Find(ctx, buildQuery(filters, allowedGroups), opts)
	if err != nil {
		return nil, s.storageErr("find", err)
	}
	defer cur.Close(ctx)

	out := []model.Document{}
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, s.storageErr("decode", err)
		}
		rec.Document.DocID = rec.ID
		rec.Document.Normalize()
		out = append(out, rec.Document)
	}
	if err := cur.Err(); err != nil {
		return nil, s.storageErr("cursor", err)
	}
	return out, nil
}

// Notate inserts doc. The _id primary key makes the insert create-if-absent.
func (s *Store) Notate(ctx context.Context, doc *model.Document) error {
	rec := record{ID: doc.DocID, Document: *doc}
	rec.Document.Normalize()
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: document %s already exists", model.ErrConflict, doc.DocID)
		}
		return s.storageErr("insert", err)
	}
	return nil
}

// Update applies patch as a partial $set of the stored record.
func (s *Store) Update(ctx context.Context, docID string, patch *model.Patch) error {
	set := bson.M{}
	for k, v := range patch.Fields() {
		set[k] = v
	}
	if len(set) == 0 {
		return s.exists(ctx, docID)
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": docID}, bson.M{"$set": set})
	if err != nil {
		return s.storageErr("update", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: document %s", model.ErrNotFound, docID)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return s.storageErr("ping", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, docID string) error {
	cur, err := s.coll.Find(ctx, bson.M{"_id": docID}, options.Find().SetLimit(1))
	if err != nil {
		return s.storageErr("find", err)
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return s.storageErr("cursor", err)
		}
		return fmt.Errorf("%w: document %s", model.ErrNotFound, docID)
	}
	return nil
}

// buildQuery ANDs one match clause per filter with an OR over the allowed
// tenants. Array fields such as docSetId match on membership. An empty
// framework value also matches a missing field.
func buildQuery(filters repository.Filters, allowedGroups []string) bson.M {
	var clauses bson.A
	for _, k := range filters.Keys() {
		key := k
		if k == "docId" {
			key = "_id"
		}
		v := filters[k]
		if _, _, dotted := repository.SplitKey(k); !dotted && v == "" {
			// omitempty framework fields are absent rather than "".
			clauses = append(clauses, bson.M{key: bson.M{"$in": bson.A{nil, ""}}})
			continue
		}
		clauses = append(clauses, bson.M{key: v})
	}
	if len(allowedGroups) > 0 {
		var tenants bson.A
		for _, g := range allowedGroups {
			tenants = append(tenants, bson.M{"siteMetadata.tenant": g})
		}
		clauses = append(clauses, bson.M{"$or": tenants})
	}
	if len(clauses) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": clauses}
}

func (s *Store) storageErr(op string, err error) error {
	if !errors.Is(err, context.Canceled) {
		s.log.Error("search index operation failed", zap.String("op", op), zap.Error(err))
	}
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}
