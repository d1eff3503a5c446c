// Package mongodoc stores settings and overrides as MongoDB documents. The
// settings singleton is the only document in its collection and is matched
// with an empty filter; overrides are keyed by their date string with a
// unique index.
package mongodoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"milkman/internal/core"
	"milkman/internal/store"
)

const (
	settingsCollection  = "settings"
	overridesCollection = "overrides"
)

var _ store.Store = (*Store)(nil)

type settingsDoc struct {
	GlobalRate       float64   `bson:"globalRate"`
	DefaultCategory1 float64   `bson:"defaultCategory1"`
	DefaultCategory2 float64   `bson:"defaultCategory2"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

type overrideDoc struct {
	Date            string    `bson:"date"`
	Category1Amount float64   `bson:"category1Amount"`
	Category2Amount float64   `bson:"category2Amount"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

type Store struct {
	client    *mongo.Client
	settings  *mongo.Collection
	overrides *mongo.Collection
	now       func() time.Time
}

// Connect dials uri, verifies the primary is reachable and ensures the
// unique date index on overrides.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		settings:  db.Collection(settingsCollection),
		overrides: db.Collection(overridesCollection),
		now:       time.Now,
	}

	_, err = s.overrides.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("date_unique"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure overrides index: %w", err)
	}

	slog.InfoContext(ctx, "Connected to MongoDB", "database", database)
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) GetSettings(ctx context.Context) (core.Settings, bool, error) {
	var doc settingsDoc
	err := s.settings.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Settings{}, false, nil
	}
	if err != nil {
		return core.Settings{}, false, fmt.Errorf("find settings: %w", err)
	}
	return core.Settings{
		GlobalRate:       doc.GlobalRate,
		DefaultCategory1: doc.DefaultCategory1,
		DefaultCategory2: doc.DefaultCategory2,
		UpdatedAt:        doc.UpdatedAt,
	}, true, nil
}

func (s *Store) PutSettings(ctx context.Context, settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	doc := settingsDoc{
		GlobalRate:       settings.GlobalRate,
		DefaultCategory1: settings.DefaultCategory1,
		DefaultCategory2: settings.DefaultCategory2,
		UpdatedAt:        s.now().UTC(),
	}
	// The replacement carries no _id, so an existing document keeps its own.
	_, err := s.settings.ReplaceOne(ctx,
		bson.D{},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (s *Store) ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error) {
	filter := bson.D{{Key: "date", Value: bson.D{
		{Key: "$gte", Value: m.First().String()},
		{Key: "$lte", Value: m.Last().String()},
	}}}
	cur, err := s.overrides.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find overrides for %s: %w", m, err)
	}
	var docs []overrideDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode overrides for %s: %w", m, err)
	}

	out := make([]core.Override, len(docs))
	for i, d := range docs {
		out[i] = core.Override{
			Date:            core.DateKey(d.Date),
			Category1Amount: d.Category1Amount,
			Category2Amount: d.Category2Amount,
			UpdatedAt:       d.UpdatedAt,
		}
	}
	return out, nil
}

func (s *Store) PutOverride(ctx context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	doc := overrideDoc{
		Date:            o.Date.String(),
		Category1Amount: o.Category1Amount,
		Category2Amount: o.Category2Amount,
		UpdatedAt:       s.now().UTC(),
	}
	_, err := s.overrides.ReplaceOne(ctx,
		bson.D{{Key: "date", Value: doc.Date}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace override %s: %w", o.Date, err)
	}
	return nil
}
