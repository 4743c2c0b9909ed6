package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the build history collection.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxmesh
	Collection string // e.g. builds
}

// MongoBuildRepo implements BuildRepo on MongoDB backend.
type MongoBuildRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoBuildRepo establishes connection and returns repository.
func NewMongoBuildRepo(cfg MongoConfig) (*MongoBuildRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxmesh"
	}
	if cfg.Collection == "" {
		cfg.Collection = "builds"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	repo := &MongoBuildRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (m *MongoBuildRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	idIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "build_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("build_id_unique"),
	}
	finishedIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "finished_at", Value: -1}},
		Options: options.Index().SetName("finished_at_desc"),
	}
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{idIdx, finishedIdx})
	return err
}

// Save upserts the build document.
func (m *MongoBuildRepo) Save(ctx context.Context, rec BuildRecord) error {
	if rec.BuildID == "" {
		return ErrInvalidBuild
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	rec.FinishedAt = rec.FinishedAt.UTC()
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"build_id": rec.BuildID},
		rec,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *MongoBuildRepo) Get(ctx context.Context, buildID string) (BuildRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var rec BuildRecord
	err := m.collection.FindOne(ctx, bson.M{"build_id": buildID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return BuildRecord{}, false, nil
	}
	if err != nil {
		return BuildRecord{}, false, err
	}
	rec.FinishedAt = rec.FinishedAt.UTC()
	return rec, true, nil
}

func (m *MongoBuildRepo) List(ctx context.Context, limit int) ([]BuildRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "finished_at", Value: -1}, {Key: "build_id", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))
	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []BuildRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].FinishedAt = out[i].FinishedAt.UTC()
	}
	return out, nil
}

// Close terminates connection.
func (m *MongoBuildRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
