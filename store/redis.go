package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	redisDb   redis.UniversalClient
	keyPrefix string
	log       log.Logger
}

func newRedis(conf *config.RedisConfig, telemetryReporter telemetry.Reporter, log log.Logger) (*redisStore, error) {
	opts := &redis.UniversalOptions{
		Addrs:    conf.Addresses,
		Password: conf.Password,
		DB:       conf.DB,
	}
	if conf.User != "" {
		opts.Username = conf.User
	}
	if conf.Tls.Enabled {
		t, err := conf.Tls.LoadTlsOptions()
		if err != nil {
			return nil, fmt.Errorf("store: failed to configure TLS for Redis: %w", err)
		}
		opts.TLSConfig = t
	}
	rdb := redis.NewUniversalClient(opts)
	telemetryReporter.InstrumentRedis(rdb)
	log.Reportf("using Redis for snapshot storage")
	return &redisStore{
		redisDb:   rdb,
		keyPrefix: conf.KeyPrefix,
		log:       log,
	}, nil
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := r.redisDb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return res, err
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.redisDb.Set(ctx, r.key(key), value, 0).Err()
}

func (r *redisStore) Shutdown() {
	err := r.redisDb.Close()
	if err != nil {
		r.log.Errorf("shutdown error: %s", err)
	}
	r.log.Reportf("shutdown complete")
}

func (r *redisStore) key(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + ":" + key
}
