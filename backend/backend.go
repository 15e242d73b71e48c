package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/outputs"
)

// Config is the configured backend client state. It is built once by
// Configure and handed to every component that talks to the backend.
type Config struct {
	aws     aws.Config
	payload *outputs.Payload
	rest    map[string]outputs.RestEndpoint
}

// Configure applies the generated outputs and the local AWS settings, and
// returns the resulting client state.
func Configure(ctx context.Context, payload *outputs.Payload, conf *config.AwsConfig, reporter telemetry.Reporter, log log.Logger) (*Config, error) {
	if payload == nil {
		return nil, fmt.Errorf("backend: outputs payload is required")
	}
	backendLog := log.WithLevel(conf.Log.GetLevel()).WithPrefix("backend")

	var opts []func(*awsconfig.LoadOptions) error
	region := conf.Region
	if region == "" {
		region = payload.Region()
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if conf.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(conf.Profile))
	}
	awsConf, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to load AWS configuration: %w", err)
	}
	if conf.Endpoint != "" {
		awsConf.BaseEndpoint = aws.String(conf.Endpoint)
		backendLog.Reportf("using endpoint override: %s", conf.Endpoint)
	}
	reporter.InstrumentAws(&awsConf)

	rest := make(map[string]outputs.RestEndpoint)
	if payload.API != nil {
		maps.Copy(rest, payload.API.REST)
	}

	if awsConf.Region == "" {
		backendLog.Warnf("no AWS region resolved")
	} else {
		backendLog.Reportf("region: %s", awsConf.Region)
	}
	backendLog.Debugf("outputs version: %s, auth: %t, data: %t, storage: %t, rest apis: %d",
		payload.Version, payload.Auth != nil, payload.Data != nil, payload.Storage != nil, len(rest))

	return &Config{
		aws:     awsConf,
		payload: payload,
		rest:    rest,
	}, nil
}

// AWS returns a copy of the SDK configuration, safe to modify per client.
func (c *Config) AWS() aws.Config {
	return c.aws.Copy()
}

func (c *Config) Region() string {
	return c.aws.Region
}

func (c *Config) Auth() *outputs.AuthOutputs {
	if c.payload == nil {
		return nil
	}
	return c.payload.Auth
}

func (c *Config) GraphQL() *outputs.DataOutputs {
	if c.payload == nil {
		return nil
	}
	return c.payload.Data
}

func (c *Config) Storage() *outputs.StorageOutputs {
	if c.payload == nil {
		return nil
	}
	return c.payload.Storage
}

// RestAPIs returns the REST endpoints declared at the top level of the outputs.
// The custom section is never consulted.
func (c *Config) RestAPIs() map[string]outputs.RestEndpoint {
	return maps.Clone(c.rest)
}

func (c *Config) Custom() json.RawMessage {
	if c.payload == nil {
		return nil
	}
	return c.payload.Custom
}

func (c *Config) Version() string {
	if c.payload == nil {
		return ""
	}
	return c.payload.Version
}
