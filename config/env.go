package config

import (
	"encoding/json"
	"os"
	"strconv"
)

var envPrefix = "PULSE"

var toInt = func(s string) (int, error) { return strconv.Atoi(s) }
var toBool = func(s string) (bool, error) { return strconv.ParseBool(s) }
var toFloat = func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
var toStringSlice = func(s string) ([]string, error) {
	var r []string
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return r, nil
}
var toCertConfigSlice = func(s string) ([]CertConfig, error) {
	var r []CertConfig
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return r, nil
}
var toStringMap = func(s string) (map[string]string, error) {
	var r map[string]string
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Config) loadEnv() {
	c.Log.loadEnv(envPrefix)
	c.Outputs.loadEnv(envPrefix)
	c.Aws.loadEnv(envPrefix)
	c.Http.loadEnv(envPrefix)
	c.Tls.loadEnv(envPrefix)
	c.Grpc.loadEnv(envPrefix)
	c.Diag.loadEnv(envPrefix)
	c.Fetch.loadEnv(envPrefix)
	c.Intraday.loadEnv(envPrefix)
	c.Store.loadEnv(envPrefix)
}

func (o *OutputsConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "OUTPUTS")
	readEnvString(prefix, "PATH", &o.Path)
}

func (a *AwsConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "AWS")
	readEnvString(prefix, "REGION", &a.Region)
	readEnvString(prefix, "ENDPOINT", &a.Endpoint)
	readEnvString(prefix, "PROFILE", &a.Profile)
	a.Log.loadEnv(prefix)
}

func (h *HttpConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "HTTP")
	readEnv(prefix, "PORT", &h.Port, toInt)
	h.Log.loadEnv(prefix)
	h.Api.loadEnv(prefix)
	h.Sse.loadEnv(prefix)
	h.Webhook.loadEnv(prefix)
	h.Status.loadEnv(prefix)
}

func (a *ApiConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "API")
	readEnv(prefix, "ENABLED", &a.Enabled, toBool)
	readEnv(prefix, "HEADERS", &a.Headers, toStringMap)
	readEnv(prefix, "AUTH_HEADERS", &a.AuthHeaders, toStringMap)
	a.CORS.loadEnv(prefix)
}

func (s *SseConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "SSE")
	readEnv(prefix, "ENABLED", &s.Enabled, toBool)
	readEnv(prefix, "HEADERS", &s.Headers, toStringMap)
	readEnv(prefix, "HEARTBEAT_INTERVAL", &s.HeartBeatInterval, toInt)
	s.CORS.loadEnv(prefix)
	s.Log.loadEnv(prefix)
}

func (w *WebhookConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "WEBHOOK")
	readEnv(prefix, "ENABLED", &w.Enabled, toBool)
	readEnvString(prefix, "SIGNING_KEY", &w.SigningKey)
	readEnv(prefix, "SIGNATURE_VALID_FOR", &w.SignatureValidFor, toInt)
	readEnv(prefix, "AUTH_HEADERS", &w.AuthHeaders, toStringMap)
	readEnvString(prefix, "AUTH_USER", &w.Auth.User)
	readEnvString(prefix, "AUTH_PASSWORD", &w.Auth.Password)
}

func (c *CORSConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "CORS")
	readEnv(prefix, "ENABLED", &c.Enabled, toBool)
	readEnv(prefix, "ALLOWED_ORIGINS", &c.AllowedOrigins, toStringSlice)
}

func (s *StatusConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "STATUS")
	readEnv(prefix, "ENABLED", &s.Enabled, toBool)
}

func (t *TlsConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "TLS")
	readEnvString(prefix, "SERVER_NAME", &t.ServerName)
	readEnv(prefix, "MIN_VERSION", &t.MinVersion, toFloat)
	readEnv(prefix, "ENABLED", &t.Enabled, toBool)
	readEnv(prefix, "CERTIFICATES", &t.Certificates, toCertConfigSlice)
}

func (g *GrpcConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "GRPC")
	readEnv(prefix, "ENABLED", &g.Enabled, toBool)
	readEnv(prefix, "PORT", &g.Port, toInt)
	readEnv(prefix, "SERVER_REFLECTION_ENABLED", &g.ServerReflectionEnabled, toBool)
	g.Log.loadEnv(prefix)
}

func (d *DiagConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "DIAG")
	readEnv(prefix, "ENABLED", &d.Enabled, toBool)
	readEnv(prefix, "PORT", &d.Port, toInt)
	d.Status.loadEnv(prefix)
	d.Metrics.loadEnv(prefix)
	d.Traces.loadEnv(prefix)
}

func (m *MetricsConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "METRICS")
	readEnv(prefix, "ENABLED", &m.Enabled, toBool)
	readEnv(concatPrefix(prefix, "PROMETHEUS"), "ENABLED", &m.Prometheus.Enabled, toBool)
	m.Otlp.loadEnv(prefix)
}

func (t *TraceConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "TRACES")
	readEnv(prefix, "ENABLED", &t.Enabled, toBool)
	t.Otlp.loadEnv(prefix)
}

func (o *OtlpConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "OTLP")
	readEnv(prefix, "ENABLED", &o.Enabled, toBool)
	readEnvString(prefix, "PROTOCOL", &o.Protocol)
	readEnvString(prefix, "ENDPOINT", &o.Endpoint)
}

func (f *FetchConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "FETCH")
	readEnv(prefix, "ENABLED", &f.Enabled, toBool)
	readEnvString(prefix, "BASE_URL", &f.BaseUrl)
	readEnvString(prefix, "SCHEDULE", &f.Schedule)
	readEnvString(prefix, "TIMEZONE", &f.Timezone)
	readEnv(prefix, "MARKETS", &f.Markets, toStringSlice)
	readEnv(prefix, "TIMEOUT", &f.Timeout, toInt)
	readEnv(prefix, "RATE_LIMIT", &f.RateLimit, toFloat)
	readEnvString(concatPrefix(prefix, "HTTP_PROXY"), "URL", &f.HttpProxy.Url)
	f.Log.loadEnv(prefix)
}

func (i *IntradayConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "INTRADAY")
	readEnv(prefix, "INTERVAL_MINUTES", &i.IntervalMinutes, toInt)
}

func (s *StoreConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "STORE")
	s.File.loadEnv(prefix)
	s.Redis.loadEnv(prefix)
	s.MongoDb.loadEnv(prefix)
	s.DynamoDb.loadEnv(prefix)
	s.Log.loadEnv(prefix)
}

func (f *FileStoreConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "FILE")
	readEnv(prefix, "ENABLED", &f.Enabled, toBool)
	readEnvString(prefix, "DIR", &f.Dir)
	readEnv(prefix, "WATCH", &f.Watch, toBool)
	readEnv(prefix, "POLLING", &f.Polling, toBool)
	readEnv(prefix, "POLL_INTERVAL", &f.PollInterval, toInt)
}

func (r *RedisConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "REDIS")
	readEnv(prefix, "ENABLED", &r.Enabled, toBool)
	readEnv(prefix, "ADDRESSES", &r.Addresses, toStringSlice)
	readEnv(prefix, "DB", &r.DB, toInt)
	readEnvString(prefix, "USER", &r.User)
	readEnvString(prefix, "PASSWORD", &r.Password)
	readEnvString(prefix, "KEY_PREFIX", &r.KeyPrefix)
	r.Tls.loadEnv(prefix)
}

func (m *MongoDbConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "MONGODB")
	readEnv(prefix, "ENABLED", &m.Enabled, toBool)
	readEnvString(prefix, "URL", &m.Url)
	readEnvString(prefix, "DATABASE", &m.Database)
	readEnvString(prefix, "COLLECTION", &m.Collection)
	m.Tls.loadEnv(prefix)
}

func (d *DynamoDbConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "DYNAMODB")
	readEnv(prefix, "ENABLED", &d.Enabled, toBool)
	readEnvString(prefix, "TABLE", &d.Table)
	readEnvString(prefix, "URL", &d.Url)
}

func (l *LogConfig) loadEnv(prefix string) {
	prefix = concatPrefix(prefix, "LOG")
	readEnvString(prefix, "LEVEL", &l.Level)
}

func readEnv[T any](prefix string, key string, in *T, conv func(string) (T, error)) {
	if env := os.Getenv(prefix + "_" + key); env != "" {
		if r, err := conv(env); err == nil {
			*in = r
		}
	}
}

func readEnvString(prefix string, key string, in *string) {
	if env := os.Getenv(prefix + "_" + key); env != "" {
		*in = env
	}
}

func concatPrefix(p1 string, p2 string) string {
	return p1 + "_" + p2
}
