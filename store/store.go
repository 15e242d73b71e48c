package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nsepulse/pulse/backend"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
)

const (
	keyName     = "key"
	payloadName = "payload"
)

// ErrNotFound is returned when no snapshot was stored for a market yet.
var ErrNotFound = errors.New("snapshot not found")

// Store persists the latest snapshot of each market.
type Store interface {
	Get(ctx context.Context, market model.Market) (*model.Snapshot, error)
	Set(ctx context.Context, market model.Market, snapshot *model.Snapshot) error
	Shutdown()
}

// Notifier signals modifications made to the stored snapshots from outside
// of this process. A nil channel means the store is not watched.
type Notifier interface {
	Modified() <-chan struct{}
}

type rawStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Shutdown()
}

type reportingStore struct {
	raw      rawStore
	reporter status.Reporter
	log      log.Logger
}

// Setup creates the configured snapshot store. Exactly one backend is used,
// in the order redis, mongodb, dynamodb, file, memory.
func Setup(ctx context.Context, conf *config.StoreConfig, backendConf *backend.Config, telemetryReporter telemetry.Reporter, statusReporter status.Reporter, log log.Logger) (Store, error) {
	storeLog := log.WithLevel(conf.Log.GetLevel()).WithPrefix("store")
	if statusReporter == nil {
		statusReporter = status.NewNullReporter()
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second) // give 15 sec to spin up the store connection
	defer cancel()

	var raw rawStore
	var err error
	switch conf.Kind() {
	case "redis":
		raw, err = newRedis(&conf.Redis, telemetryReporter, storeLog)
	case "mongodb":
		raw, err = newMongoDb(ctx, &conf.MongoDb, telemetryReporter, storeLog)
	case "dynamodb":
		raw, err = newDynamoDb(&conf.DynamoDb, backendConf, storeLog)
	case "file":
		raw, err = newFileStore(&conf.File, storeLog)
	default:
		raw = newMemoryStore(storeLog)
		// the memory store is not reported, its status stays n/a
		statusReporter = status.NewNullReporter()
	}
	if err != nil {
		statusReporter.ReportError(status.Store, "failed to initialize the store")
		return nil, err
	}
	return &reportingStore{raw: raw, reporter: statusReporter, log: storeLog}, nil
}

func (s *reportingStore) Get(ctx context.Context, market model.Market) (*model.Snapshot, error) {
	data, err := s.raw.Get(ctx, market.String())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		s.log.Errorf("failed to read snapshot of %s: %s", market, err)
		s.reporter.ReportError(status.Store, fmt.Sprintf("failed to read snapshot of %s", market))
		return nil, fmt.Errorf("store: failed to read snapshot of %s: %w", market, err)
	}
	var snapshot model.Snapshot
	if err = json.Unmarshal(data, &snapshot); err != nil {
		s.log.Errorf("invalid snapshot stored for %s: %s", market, err)
		s.reporter.ReportError(status.Store, fmt.Sprintf("invalid snapshot stored for %s", market))
		return nil, fmt.Errorf("store: invalid snapshot stored for %s: %w", market, err)
	}
	return &snapshot, nil
}

func (s *reportingStore) Set(ctx context.Context, market model.Market, snapshot *model.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: failed to serialize snapshot of %s: %w", market, err)
	}
	if err = s.raw.Set(ctx, market.String(), data); err != nil {
		s.log.Errorf("failed to write snapshot of %s: %s", market, err)
		s.reporter.ReportError(status.Store, fmt.Sprintf("failed to write snapshot of %s", market))
		return fmt.Errorf("store: failed to write snapshot of %s: %w", market, err)
	}
	s.log.Debugf("snapshot of %s stored", market)
	s.reporter.ReportOk(status.Store, fmt.Sprintf("snapshot of %s stored", market))
	return nil
}

func (s *reportingStore) Modified() <-chan struct{} {
	if n, ok := s.raw.(Notifier); ok {
		return n.Modified()
	}
	return nil
}

func (s *reportingStore) Shutdown() {
	s.raw.Shutdown()
}
