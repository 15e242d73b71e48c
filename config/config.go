package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nsepulse/pulse/log"
	"gopkg.in/yaml.v3"
)

var allowedLogLevels = map[string]log.Level{
	"debug": log.Debug,
	"info":  log.Info,
	"warn":  log.Warn,
	"error": log.Error,
}

var allowedTlsVersions = map[float64]uint16{
	1.0: tls.VersionTLS10,
	1.1: tls.VersionTLS11,
	1.2: tls.VersionTLS12,
	1.3: tls.VersionTLS13,
}

type Config struct {
	Log      LogConfig
	Outputs  OutputsConfig
	Aws      AwsConfig
	Http     HttpConfig
	Tls      TlsConfig
	Grpc     GrpcConfig
	Diag     DiagConfig
	Fetch    FetchConfig
	Intraday IntradayConfig
	Store    StoreConfig
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// OutputsConfig points to the generated backend outputs document.
type OutputsConfig struct {
	Path string `yaml:"path"`
}

type AwsConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Profile  string `yaml:"profile"`
	Log      LogConfig
}

type HttpConfig struct {
	Port   int `yaml:"port"`
	Log    LogConfig
	Api     ApiConfig
	Sse     SseConfig
	Webhook WebhookConfig
	Status  StatusConfig
}

type ApiConfig struct {
	AuthHeaders map[string]string `yaml:"auth_headers"`
	Headers     map[string]string `yaml:"headers"`
	Enabled     bool              `yaml:"enabled"`
	CORS        CORSConfig
}

type SseConfig struct {
	Enabled           bool              `yaml:"enabled"`
	Headers           map[string]string `yaml:"headers"`
	HeartBeatInterval int               `yaml:"heart_beat_interval"`
	CORS              CORSConfig
	Log               LogConfig
}

// WebhookConfig configures the endpoint that triggers an immediate fetch.
type WebhookConfig struct {
	Enabled           bool              `yaml:"enabled"`
	SigningKey        string            `yaml:"signing_key"`
	SignatureValidFor int               `yaml:"signature_valid_for"`
	AuthHeaders       map[string]string `yaml:"auth_headers"`
	Auth              AuthConfig
}

type AuthConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type CertConfig struct {
	Key  string `yaml:"key"`
	Cert string `yaml:"cert"`
}

type TlsConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MinVersion   float64 `yaml:"min_version"`
	ServerName   string  `yaml:"server_name"`
	Certificates []CertConfig
}

type GrpcConfig struct {
	Enabled                 bool `yaml:"enabled"`
	Port                    int  `yaml:"port"`
	ServerReflectionEnabled bool `yaml:"server_reflection_enabled"`
	Log                     LogConfig
}

type DiagConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	Status  StatusConfig
	Metrics MetricsConfig
	Traces  TraceConfig
}

type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Prometheus PrometheusConfig
	Otlp       OtlpConfig
}

type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
	Otlp    OtlpConfig
}

type OtlpConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Protocol string `yaml:"protocol"`
	Endpoint string `yaml:"endpoint"`
}

type FetchConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BaseUrl   string          `yaml:"base_url"`
	Schedule  string          `yaml:"schedule"`
	Timezone  string          `yaml:"timezone"`
	Markets   []string        `yaml:"markets"`
	Timeout   int             `yaml:"timeout"`
	RateLimit float64         `yaml:"rate_limit"`
	HttpProxy HttpProxyConfig `yaml:"http_proxy"`
	Log       LogConfig
}

type HttpProxyConfig struct {
	Url string `yaml:"url"`
}

type IntradayConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

type StoreConfig struct {
	File     FileStoreConfig
	Redis    RedisConfig
	MongoDb  MongoDbConfig  `yaml:"mongodb"`
	DynamoDb DynamoDbConfig `yaml:"dynamodb"`
	Log      LogConfig
}

type FileStoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	Watch        bool   `yaml:"watch"`
	Polling      bool   `yaml:"polling"`
	PollInterval int    `yaml:"poll_interval"`
}

type RedisConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addresses []string `yaml:"addresses"`
	DB        int      `yaml:"db"`
	User      string   `yaml:"user"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
	Tls       TlsConfig
}

type MongoDbConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Url        string `yaml:"url"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Tls        TlsConfig
}

type DynamoDbConfig struct {
	Enabled bool   `yaml:"enabled"`
	Table   string `yaml:"table"`
	Url     string `yaml:"url"`
}

func LoadConfigFromFileAndEnvironment(filePath string) (Config, error) {
	var config Config
	config.setDefaults()

	if filePath != "" {
		_, err := os.Stat(filePath)
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist: %s", filePath, err)
		}
		realPath, err := filepath.EvalSymlinks(filePath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to eval symlink for %s: %s", filePath, err)
		}
		data, err := os.ReadFile(realPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %s", realPath, err)
		}

		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML from config file %s: %s", realPath, err)
		}
	}

	config.loadEnv()
	if config.Log.GetLevel() == log.None {
		config.Log.Level = "warn"
	}
	config.fixupLogLevels(config.Log.Level)
	return config, nil
}

func (l *LogConfig) GetLevel() log.Level {
	if lvl, ok := allowedLogLevels[l.Level]; ok {
		return lvl
	}
	return log.None
}

func (t *TlsConfig) GetVersion() uint16 {
	if ver, ok := allowedTlsVersions[t.MinVersion]; ok {
		return ver
	}
	return tls.VersionTLS12
}

// LoadTlsOptions builds a client side TLS configuration.
func (t *TlsConfig) LoadTlsOptions() (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion: t.GetVersion(),
		ServerName: t.ServerName,
	}
	for _, c := range t.Certificates {
		cert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
		if err != nil {
			return nil, err
		}
		conf.Certificates = append(conf.Certificates, cert)
	}
	return conf, nil
}

func (s *StoreConfig) IsExternal() bool {
	return s.Redis.Enabled || s.MongoDb.Enabled || s.DynamoDb.Enabled
}

// Kind returns the name of the snapshot store backend in use.
func (s *StoreConfig) Kind() string {
	switch {
	case s.Redis.Enabled:
		return "redis"
	case s.MongoDb.Enabled:
		return "mongodb"
	case s.DynamoDb.Enabled:
		return "dynamodb"
	case s.File.Enabled:
		return "file"
	default:
		return "memory"
	}
}

func (d *DiagConfig) IsMetricsEnabled() bool {
	return d.Enabled && d.Metrics.Enabled && (d.Metrics.Prometheus.Enabled || d.Metrics.Otlp.Enabled)
}

func (d *DiagConfig) IsPrometheusExporterEnabled() bool {
	return d.Metrics.Prometheus.Enabled
}

func (d *DiagConfig) IsStatusEnabled() bool {
	return d.Enabled && d.Status.Enabled
}

func (d *DiagConfig) IsTracesEnabled() bool {
	return d.Traces.Enabled && d.Traces.Otlp.Enabled
}

func (c *Config) setDefaults() {
	c.Outputs.Path = "amplify_outputs.json"

	c.Http.Port = 8899
	c.Http.Api.Enabled = true
	c.Http.Api.CORS.Enabled = true
	c.Http.Sse.Enabled = true
	c.Http.Sse.CORS.Enabled = true
	c.Http.Sse.HeartBeatInterval = 30
	c.Http.Webhook.SignatureValidFor = 300
	c.Http.Status.Enabled = true

	c.Grpc.Port = 50051
	c.Grpc.ServerReflectionEnabled = true

	c.Diag.Enabled = true
	c.Diag.Port = 8051
	c.Diag.Status.Enabled = true
	c.Diag.Metrics.Enabled = true
	c.Diag.Metrics.Prometheus.Enabled = true
	c.Diag.Metrics.Otlp.Protocol = "http"
	c.Diag.Traces.Otlp.Protocol = "http"

	c.Fetch.Enabled = true
	c.Fetch.BaseUrl = "https://www.nseindia.com"
	c.Fetch.Schedule = "@every 1m"
	c.Fetch.Timezone = "Asia/Kolkata"
	c.Fetch.Markets = []string{"nifty", "banknifty"}
	c.Fetch.Timeout = 30
	c.Fetch.RateLimit = 1

	c.Intraday.IntervalMinutes = 15

	c.Store.File.Enabled = true
	c.Store.File.Dir = "."
	c.Store.File.PollInterval = 5
	c.Store.Redis.Addresses = []string{"localhost:6379"}
	c.Store.Redis.KeyPrefix = "pulse"
	c.Store.MongoDb.Database = "pulse"
	c.Store.MongoDb.Collection = "snapshots"
	c.Store.DynamoDb.Table = "pulse-snapshots"
}

func (c *Config) fixupLogLevels(defLevel string) {
	if c.Http.Log.GetLevel() == log.None {
		c.Http.Log.Level = defLevel
	}
	if c.Http.Sse.Log.GetLevel() == log.None {
		c.Http.Sse.Log.Level = defLevel
	}
	if c.Grpc.Log.GetLevel() == log.None {
		c.Grpc.Log.Level = defLevel
	}
	if c.Fetch.Log.GetLevel() == log.None {
		c.Fetch.Log.Level = defLevel
	}
	if c.Store.Log.GetLevel() == log.None {
		c.Store.Log.Level = defLevel
	}
	if c.Aws.Log.GetLevel() == log.None {
		c.Aws.Log.Level = defLevel
	}
}
