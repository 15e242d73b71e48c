package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Memory(t *testing.T) {
	reporter := status.NewReporter(&config.Config{})
	s, err := Setup(t.Context(), &config.StoreConfig{}, nil, telemetry.NewEmptyReporter(), reporter, log.NewNullLogger())
	require.NoError(t, err)
	defer s.Shutdown()
	assert.IsType(t, &memoryStore{}, s.(*reportingStore).raw)

	_, err = s.Get(t.Context(), model.Nifty)
	assert.ErrorIs(t, err, ErrNotFound)

	snap := testSnapshot(24500)
	require.NoError(t, s.Set(t.Context(), model.Nifty, snap))
	res, err := s.Get(t.Context(), model.Nifty)
	require.NoError(t, err)
	assert.Equal(t, snap, res)
	assert.Nil(t, s.(Notifier).Modified())
	assert.Equal(t, status.NA, reporter.GetStatus().Store.Status)
}

func TestSetup_OnlyOneSelected(t *testing.T) {
	srv := miniredis.RunT(t)
	s, err := Setup(t.Context(), &config.StoreConfig{
		File:  config.FileStoreConfig{Enabled: true, Dir: t.TempDir()},
		Redis: config.RedisConfig{Addresses: []string{srv.Addr()}, Enabled: true},
		MongoDb: config.MongoDbConfig{
			Enabled:    true,
			Url:        "mongodb://localhost:27017",
			Database:   "test_db",
			Collection: "coll",
		},
	}, nil, telemetry.NewEmptyReporter(), nil, log.NewNullLogger())
	require.NoError(t, err)
	defer s.Shutdown()
	assert.IsType(t, &redisStore{}, s.(*reportingStore).raw)
}

func TestSetup_File(t *testing.T) {
	s, err := Setup(t.Context(), &config.StoreConfig{File: config.FileStoreConfig{Enabled: true, Dir: t.TempDir()}}, nil, telemetry.NewEmptyReporter(), nil, log.NewNullLogger())
	require.NoError(t, err)
	defer s.Shutdown()
	assert.IsType(t, &fileStore{}, s.(*reportingStore).raw)
}

func TestSetup_File_CannotCreateDir(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o644))
	reporter := status.NewReporter(&config.Config{Store: config.StoreConfig{File: config.FileStoreConfig{Enabled: true}}})
	errBuf := &bytes.Buffer{}

	_, err := Setup(t.Context(), &config.StoreConfig{File: config.FileStoreConfig{Enabled: true, Dir: filepath.Join(parent, "snapshots")}},
		nil, telemetry.NewEmptyReporter(), reporter, log.NewLogger(errBuf, &bytes.Buffer{}, log.Debug))
	assert.ErrorContains(t, err, "store: failed to create directory")
	assert.Empty(t, errBuf.String())
	assert.Equal(t, status.Degraded, reporter.GetStatus().Store.Status)
}

func TestSetup_DynamoDb_WithoutBackend(t *testing.T) {
	reporter := status.NewReporter(&config.Config{Store: config.StoreConfig{DynamoDb: config.DynamoDbConfig{Enabled: true}}})
	_, err := Setup(t.Context(), &config.StoreConfig{DynamoDb: config.DynamoDbConfig{Enabled: true, Table: "t"}}, nil, telemetry.NewEmptyReporter(), reporter, log.NewNullLogger())
	assert.ErrorContains(t, err, "DynamoDB requires the backend configuration")
	assert.Equal(t, status.Degraded, reporter.GetStatus().Store.Status)
}

func TestReportingStore_Status(t *testing.T) {
	srv := miniredis.RunT(t)
	reporter := status.NewReporter(&config.Config{Store: config.StoreConfig{Redis: config.RedisConfig{Enabled: true}}})
	s, err := Setup(t.Context(), &config.StoreConfig{Redis: config.RedisConfig{Addresses: []string{srv.Addr()}, Enabled: true, KeyPrefix: "pulse"}}, nil, telemetry.NewEmptyReporter(), reporter, log.NewNullLogger())
	require.NoError(t, err)
	defer s.Shutdown()
	assert.Equal(t, status.Initializing, reporter.GetStatus().Store.Status)

	require.NoError(t, s.Set(t.Context(), model.BankNifty, testSnapshot(51000)))
	stat := reporter.GetStatus().Store
	assert.Equal(t, status.Healthy, stat.Status)
	assert.Equal(t, "redis", stat.Type)
	assert.Contains(t, stat.Records[0], "[ok] snapshot of banknifty stored")
	assert.True(t, srv.Exists("pulse:banknifty"))

	require.NoError(t, srv.Set("pulse:nifty", "{not json"))
	_, err = s.Get(t.Context(), model.Nifty)
	assert.ErrorContains(t, err, "store: invalid snapshot stored for nifty")

	srv.Close()
	err = s.Set(t.Context(), model.Nifty, testSnapshot(1))
	assert.ErrorContains(t, err, "store: failed to write snapshot of nifty")
	stat = reporter.GetStatus().Store
	assert.Equal(t, status.Degraded, stat.Status)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	m := newMemoryStore(log.NewNullLogger())
	value := []byte(`{"a":1}`)
	require.NoError(t, m.Set(context.Background(), "k", value))
	value[0] = 'x'
	res, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(res))
}

func TestNotifier(t *testing.T) {
	n := newNotifier()
	n.Notify()
	n.Notify()
	<-n.Modified()
	select {
	case <-n.Modified():
		t.Fatal("notifications should be coalesced")
	default:
	}
	n.Close()
	n.Notify()
	select {
	case <-n.Modified():
		t.Fatal("closed notifier should not notify")
	case <-n.Closed():
	}
}

func testSnapshot(underlying float64) *model.Snapshot {
	return &model.Snapshot{
		UnderlyingValue: underlying,
		CallData: []model.StrikeData{
			{StrikePrice: underlying, LastPrice: 120.5, OpenInterest: 1000, ChangeInOI: 100, OdinPercentage: 10},
		},
		PutData: []model.StrikeData{
			{StrikePrice: underlying + 100, LastPrice: 80, OpenInterest: 500, ChangeInOI: -50, OdinPercentage: -10},
		},
		FetchedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}
}
