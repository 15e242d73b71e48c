package config

import (
	"fmt"
	"time"

	"github.com/nsepulse/pulse/model"
	"github.com/robfig/cron/v3"
)

func (c *Config) Validate() error {
	if c.Outputs.Path == "" {
		return fmt.Errorf("outputs: the path of the generated outputs file is required")
	}
	if err := c.Tls.validate(); err != nil {
		return err
	}
	if err := c.Http.validate(); err != nil {
		return err
	}
	if err := c.Grpc.validate(); err != nil {
		return err
	}
	if err := c.Diag.validate(); err != nil {
		return err
	}
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if err := c.Intraday.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (t *TlsConfig) validate() error {
	if !t.Enabled {
		return nil
	}
	for _, cert := range t.Certificates {
		if (cert.Cert != "" && cert.Key == "") || (cert.Key != "" && cert.Cert == "") {
			return fmt.Errorf("tls: both TLS cert and key file required")
		}
	}
	return nil
}

func (h *HttpConfig) validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http: invalid port %d", h.Port)
	}
	if h.Sse.Enabled && h.Sse.HeartBeatInterval < 1 {
		return fmt.Errorf("sse: heartbeat interval must be greater than 1 seconds")
	}
	if h.Webhook.Enabled && h.Webhook.SigningKey != "" && h.Webhook.SignatureValidFor < 5 {
		return fmt.Errorf("webhook: signature validity period must be at least 5 seconds")
	}
	if (h.Webhook.Auth.User == "") != (h.Webhook.Auth.Password == "") {
		return fmt.Errorf("webhook: both basic auth user and password are required")
	}
	return nil
}

func (g *GrpcConfig) validate() error {
	if !g.Enabled {
		return nil
	}
	if g.Port < 1 || g.Port > 65535 {
		return fmt.Errorf("grpc: invalid port %d", g.Port)
	}
	return nil
}

func (d *DiagConfig) validate() error {
	if d.Enabled && (d.Port < 1 || d.Port > 65535) {
		return fmt.Errorf("diag: invalid port %d", d.Port)
	}
	if d.IsMetricsEnabled() && d.Metrics.Otlp.Enabled {
		if err := d.Metrics.Otlp.validate(); err != nil {
			return err
		}
	}
	if d.IsTracesEnabled() {
		if err := d.Traces.Otlp.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *OtlpConfig) validate() error {
	switch o.Protocol {
	case "grpc", "http", "https":
		return nil
	default:
		return fmt.Errorf("diag: invalid OTLP protocol '%s', it must be 'grpc', 'http' or 'https'", o.Protocol)
	}
}

func (f *FetchConfig) validate() error {
	if !f.Enabled {
		return nil
	}
	if f.BaseUrl == "" {
		return fmt.Errorf("fetch: base URL is required")
	}
	if len(f.Markets) == 0 {
		return fmt.Errorf("fetch: at least 1 market must be configured")
	}
	for _, m := range f.Markets {
		if _, err := model.ParseMarket(m); err != nil {
			return fmt.Errorf("fetch: %s", err)
		}
	}
	if _, err := cron.ParseStandard(f.Schedule); err != nil {
		return fmt.Errorf("fetch: invalid schedule '%s': %s", f.Schedule, err)
	}
	if _, err := time.LoadLocation(f.Timezone); err != nil {
		return fmt.Errorf("fetch: invalid timezone '%s': %s", f.Timezone, err)
	}
	if f.Timeout < 1 {
		return fmt.Errorf("fetch: timeout must be greater than 1 seconds")
	}
	if f.RateLimit <= 0 {
		return fmt.Errorf("fetch: rate limit must be a positive number")
	}
	return nil
}

func (i *IntradayConfig) validate() error {
	if i.IntervalMinutes < 1 || i.IntervalMinutes > 60 || 60%i.IntervalMinutes != 0 {
		return fmt.Errorf("intraday: interval must be a divisor of 60 minutes, got %d", i.IntervalMinutes)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if err := s.File.validate(); err != nil {
		return err
	}
	if err := s.Redis.validate(); err != nil {
		return err
	}
	if err := s.MongoDb.validate(); err != nil {
		return err
	}
	if err := s.DynamoDb.validate(); err != nil {
		return err
	}
	return nil
}

func (f *FileStoreConfig) validate() error {
	if !f.Enabled {
		return nil
	}
	if f.Dir == "" {
		return fmt.Errorf("file store: directory is required")
	}
	if f.Watch && f.Polling && f.PollInterval < 1 {
		return fmt.Errorf("file store: poll interval must be greater than 1 seconds")
	}
	return nil
}

func (r *RedisConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if len(r.Addresses) == 0 {
		return fmt.Errorf("redis: at least 1 server address required")
	}
	if err := r.Tls.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MongoDbConfig) validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Url == "" {
		return fmt.Errorf("mongodb: invalid connection string")
	}
	if m.Database == "" {
		return fmt.Errorf("mongodb: database name is required")
	}
	if m.Collection == "" {
		return fmt.Errorf("mongodb: collection name is required")
	}
	if err := m.Tls.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DynamoDbConfig) validate() error {
	if !d.Enabled {
		return nil
	}
	if d.Table == "" {
		return fmt.Errorf("dynamodb: table name is required")
	}
	return nil
}
