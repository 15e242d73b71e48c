package store

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/docker/go-connections/nat"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/internal/testutils"
	"github.com/nsepulse/pulse/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStore_Miniredis(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := newRedis(&config.RedisConfig{Addresses: []string{srv.Addr()}, KeyPrefix: "pulse"}, telemetry.NewEmptyReporter(), log.NewNullLogger())
	require.NoError(t, err)
	defer store.Shutdown()

	_, err = store.Get(t.Context(), "nifty")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(t.Context(), "nifty", []byte(`{"underlyingValue":1}`)))
	v, err := srv.Get("pulse:nifty")
	require.NoError(t, err)
	assert.Equal(t, `{"underlyingValue":1}`, v)

	res, err := store.Get(t.Context(), "nifty")
	require.NoError(t, err)
	assert.Equal(t, `{"underlyingValue":1}`, string(res))
}

func TestRedisStore_NoPrefix(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := newRedis(&config.RedisConfig{Addresses: []string{srv.Addr()}}, telemetry.NewEmptyReporter(), log.NewNullLogger())
	require.NoError(t, err)
	defer store.Shutdown()

	require.NoError(t, store.Set(t.Context(), "banknifty", []byte(`{}`)))
	assert.True(t, srv.Exists("banknifty"))
}

type redisTestSuite struct {
	suite.Suite

	db     *redis.RedisContainer
	dbPort string
}

func (s *redisTestSuite) SetupSuite() {
	redisContainer, err := redis.Run(s.T().Context(), "redis")
	if err != nil {
		panic("failed to start container: " + err.Error() + "")
	}
	s.db = redisContainer
	p, _ := nat.NewPort("tcp", "6379")
	dbPort, _ := s.db.MappedPort(s.T().Context(), p)
	s.dbPort = dbPort.Port()
}

func (s *redisTestSuite) TearDownSuite() {
	if err := testcontainers.TerminateContainer(s.db); err != nil {
		panic("failed to terminate container: " + err.Error() + "")
	}
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(redisTestSuite))
}

func (s *redisTestSuite) TestRedisStore() {
	store, err := newRedis(&config.RedisConfig{Addresses: []string{"localhost:" + s.dbPort}, KeyPrefix: "pulse"}, telemetry.NewEmptyReporter(), log.NewNullLogger())
	assert.NoError(s.T(), err)
	defer store.Shutdown()

	err = store.Set(s.T().Context(), "nifty", []byte(`test`))
	assert.NoError(s.T(), err)
	res, err := store.Get(s.T().Context(), "nifty")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), `test`, string(res))
}

func (s *redisTestSuite) TestRedisStore_Unavailable() {
	store, err := newRedis(&config.RedisConfig{Addresses: []string{"nonexisting"}}, telemetry.NewEmptyReporter(), log.NewNullLogger())
	assert.NoError(s.T(), err)
	defer store.Shutdown()

	err = store.Set(s.T().Context(), "nifty", []byte(`test`))
	assert.Error(s.T(), err)
	_, err = store.Get(s.T().Context(), "nifty")
	assert.Error(s.T(), err)
	assert.NotErrorIs(s.T(), err, ErrNotFound)
}

func (s *redisTestSuite) TestSetup() {
	st, err := Setup(s.T().Context(), &config.StoreConfig{Redis: config.RedisConfig{Addresses: []string{"localhost:" + s.dbPort}, Enabled: true}}, nil, telemetry.NewEmptyReporter(), nil, log.NewNullLogger())
	assert.NoError(s.T(), err)
	defer st.Shutdown()
	assert.IsType(s.T(), &redisStore{}, st.(*reportingStore).raw)

	snap := testSnapshot(24500)
	assert.NoError(s.T(), st.Set(s.T().Context(), "nifty", snap))
	res, err := st.Get(s.T().Context(), "nifty")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), snap, res)
}

func TestRedisStore_TLS(t *testing.T) {
	ctx := t.Context()

	redisContainer, err := redis.Run(ctx, "redis", redis.WithTLS())
	defer func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			panic("failed to terminate container: " + err.Error() + "")
		}
	}()
	if err != nil {
		panic("failed to start container: " + err.Error() + "")
	}

	p, _ := nat.NewPort("tcp", "6379")
	dbPort, _ := redisContainer.MappedPort(t.Context(), p)

	tls := redisContainer.TLSConfig()
	cert := tls.Certificates[0]

	var pemCerts [][]byte
	for _, derBytes := range cert.Certificate {
		pemCerts = append(pemCerts, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}))
	}
	pk, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	assert.NoError(t, err)
	k := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pk})

	t.Run("valid", func(t *testing.T) {
		testutils.UseTempFile(string(bytes.Join(pemCerts, []byte{'\n'})), func(cert string) {
			testutils.UseTempFile(string(k), func(key string) {
				store, err := newRedis(&config.RedisConfig{
					Addresses: []string{"localhost:" + dbPort.Port()},
					Tls: config.TlsConfig{
						Enabled:      true,
						MinVersion:   1.1,
						Certificates: []config.CertConfig{{Key: key, Cert: cert}},
					},
				}, telemetry.NewEmptyReporter(), log.NewNullLogger())
				assert.NoError(t, err)
				assert.NotNil(t, store)
			})
		})
	})
	t.Run("invalid", func(t *testing.T) {
		store, err := newRedis(&config.RedisConfig{
			Addresses: []string{"localhost:" + dbPort.Port()},
			Tls: config.TlsConfig{
				Enabled:      true,
				MinVersion:   1.1,
				Certificates: []config.CertConfig{{Key: "nonexisting", Cert: "nonexisting"}},
			},
		}, telemetry.NewEmptyReporter(), log.NewNullLogger())
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}
