package mongodb

import (
	"context"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection adapts a driver collection to the loader and migrator
type Collection struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.coll.Name()
}

// InsertMany stores docs in one bulk call. Every document receives a
// store-generated _id. The count covers documents inserted before a
// failure as well.
func (c *Collection) InsertMany(ctx context.Context, docs []interface{}) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := c.coll.InsertMany(ctx, docs)
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		msg := "bulk insert failed"
		if mongo.IsDuplicateKeyError(err) {
			msg = "bulk insert hit a duplicate key"
		}
		return inserted, errors.Wrap(err, errors.ErrorTypeQuery, msg).WithDetail("inserted", inserted)
	}
	c.logger.Debug("documents inserted", zap.Int("count", inserted))
	return inserted, nil
}

// FindAll returns every document of the collection
func (c *Collection) FindAll(ctx context.Context) ([]bson.M, error) {
	return c.Find(ctx, 0)
}

// Find returns up to limit documents in natural order; 0 means all.
func (c *Collection) Find(ctx context.Context, limit int64) ([]bson.M, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "find failed")
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to decode documents")
	}
	return docs, nil
}

// Each streams every document to fn, stopping at the first error fn returns.
func (c *Collection) Each(ctx context.Context, fn func(bson.M) error) error {
	cursor, err := c.coll.Find(ctx, bson.D{})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "find failed")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to decode document")
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "cursor failed")
	}
	return nil
}

// Count returns the number of documents in the collection
func (c *Collection) Count(ctx context.Context) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery, "count failed")
	}
	return n, nil
}
