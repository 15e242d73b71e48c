// Package bootstrap sequences the one-time startup of the service: it loads
// the generated outputs, configures the backend once and mounts the
// application once, forwarding a mount failure to the diagnostic sink.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/nsepulse/pulse/app"
	"github.com/nsepulse/pulse/backend"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/outputs"
)

type LoadFunc func(path string) (*outputs.Payload, error)
type ConfigureFunc func(ctx context.Context, payload *outputs.Payload) (*backend.Config, error)
type MountFunc func(ctx context.Context, backend *backend.Config) (*app.App, <-chan error)

type Entrypoint struct {
	OutputsPath string
	Load        LoadFunc
	Configure   ConfigureFunc
	Mount       MountFunc
	// Sink receives the startup failure, on its error stream.
	Sink log.Logger
}

// Run performs the startup sequence. On success the mounted app and the
// backend configuration are returned; on failure the error has already been
// reported to the sink once and nothing else is started.
func (e *Entrypoint) Run(ctx context.Context) (*app.App, *backend.Config, error) {
	load := e.Load
	if load == nil {
		load = outputs.Load
	}
	sink := e.Sink
	if sink == nil {
		sink = log.NewNullLogger()
	}

	payload, err := load(e.OutputsPath)
	if err != nil {
		return nil, nil, report(sink, fmt.Errorf("failed to load outputs: %w", err))
	}
	backendConf, err := e.Configure(ctx, payload)
	if err != nil {
		return nil, nil, report(sink, err)
	}

	mounted, done := e.Mount(ctx, backendConf)
	select {
	case err = <-done:
	case <-ctx.Done():
		<-done
		mounted.Shutdown()
		err = fmt.Errorf("startup cancelled: %w", ctx.Err())
	}
	if err != nil {
		return nil, nil, report(sink, err)
	}
	return mounted, backendConf, nil
}

func report(sink log.Logger, err error) error {
	sink.Errorf("%s", err)
	return err
}
