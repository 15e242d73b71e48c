package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoDbStore struct {
	mongoDb    *mongo.Client
	collection *mongo.Collection
	log        log.Logger
}

type entry struct {
	Key       string    `bson:"key"`
	Payload   []byte    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func newMongoDb(ctx context.Context, conf *config.MongoDbConfig, telemetryReporter telemetry.Reporter, log log.Logger) (*mongoDbStore, error) {
	opts := options.Client().ApplyURI(conf.Url)
	telemetryReporter.InstrumentMongoDb(opts)
	if conf.Tls.Enabled {
		t, err := conf.Tls.LoadTlsOptions()
		if err != nil {
			return nil, fmt.Errorf("store: failed to configure TLS for MongoDB: %w", err)
		}
		opts.SetTLSConfig(t)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("store: couldn't connect to MongoDB: %w", err)
	}
	collection := client.Database(conf.Database).Collection(conf.Collection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{keyName: 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("store: couldn't create the 'key' index in the '%s' MongoDB collection: %w", conf.Collection, err)
	}
	log.Reportf("using MongoDB for snapshot storage")
	return &mongoDbStore{
		mongoDb:    client,
		collection: collection,
		log:        log,
	}, nil
}

func (m *mongoDbStore) Get(ctx context.Context, key string) ([]byte, error) {
	var result entry
	err := m.collection.FindOne(ctx, bson.M{keyName: key}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return result.Payload, err
}

func (m *mongoDbStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.collection.ReplaceOne(ctx, bson.M{keyName: key},
		entry{Key: key, Payload: value, UpdatedAt: time.Now().UTC()}, options.Replace().SetUpsert(true))
	return err
}

func (m *mongoDbStore) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.mongoDb.Disconnect(ctx)
	if err != nil {
		m.log.Errorf("shutdown error: %s", err)
	}
	m.log.Reportf("shutdown complete")
}
