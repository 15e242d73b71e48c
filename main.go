package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsepulse/pulse/app"
	"github.com/nsepulse/pulse/backend"
	"github.com/nsepulse/pulse/bootstrap"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/grpc"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/nse"
	"github.com/nsepulse/pulse/outputs"
	"github.com/nsepulse/pulse/poller"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"github.com/nsepulse/pulse/web"
	"github.com/nsepulse/pulse/web/webhook"
)

const (
	exitOk = iota
	exitFailure
)

// set at build time with -ldflags "-X main.version=..."
var version = "0.0.0-dev"

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	os.Exit(run(sigChan))
}

func run(closeSignal chan os.Signal) int {
	logger := log.NewLogger(os.Stderr, os.Stdout, log.Warn)
	logger.Reportf("service starting...")
	var configFile string
	var outputsFile string
	flag.StringVar(&configFile, "c", "", "path to the configuration file")
	flag.StringVar(&outputsFile, "outputs", "", "path to the generated backend outputs file")
	flag.Parse()

	conf, err := config.LoadConfigFromFileAndEnvironment(configFile)
	if err != nil {
		logger.Errorf("%s", err)
		return exitFailure
	}
	if outputsFile != "" {
		conf.Outputs.Path = outputsFile
	}
	err = conf.Validate()
	if err != nil {
		logger.Errorf("%s", err)
		return exitFailure
	}

	logger = logger.WithLevel(conf.Log.GetLevel())

	errorChan := make(chan error)

	telemetryReporter := telemetry.NewReporter(&conf.Diag, version, logger)
	defer telemetryReporter.Shutdown()

	statusReporter := status.NewReporter(&conf)

	publisher := pubsub.NewDroppingPublisher[model.Update](telemetryReporter.AddDroppedUpdate)
	defer publisher.Close()

	var snapshotStore store.Store
	defer func() {
		if snapshotStore != nil {
			snapshotStore.Shutdown()
		}
	}()

	entrypoint := &bootstrap.Entrypoint{
		OutputsPath: conf.Outputs.Path,
		Configure: func(ctx context.Context, payload *outputs.Payload) (*backend.Config, error) {
			return backend.Configure(ctx, payload, &conf.Aws, telemetryReporter, logger)
		},
		Mount: func(ctx context.Context, backendConf *backend.Config) (*app.App, <-chan error) {
			st, err := store.Setup(ctx, &conf.Store, backendConf, telemetryReporter, statusReporter, logger)
			if err != nil {
				return app.Failed(err)
			}
			snapshotStore = st
			return mount(ctx, st, publisher, &conf, telemetryReporter, statusReporter, logger, errorChan)
		},
		Sink: logger,
	}
	mounted, _, err := entrypoint.Run(context.Background())
	if err != nil {
		return exitFailure
	}
	defer mounted.Shutdown()

	for {
		select {
		case <-closeSignal:
			mounted.Shutdown()
			return exitOk
		case err = <-mounted.Errors():
			logger.Errorf("%s", err)
			return exitFailure
		}
	}
}

func mount(ctx context.Context, st store.Store, publisher pubsub.Publisher[model.Update], conf *config.Config,
	telemetryReporter telemetry.Reporter, statusReporter status.Reporter, logger log.Logger, errorChan chan error) (*app.App, <-chan error) {
	client, err := nse.NewClient(&conf.Fetch, telemetryReporter, statusReporter, logger)
	if err != nil {
		return app.Failed(err)
	}
	registry := intraday.NewRegistry(telemetryReporter)
	poll, err := poller.New(conf, client, st, registry, publisher, logger)
	if err != nil {
		return app.Failed(err)
	}

	var refresher webhook.Refresher
	if conf.Fetch.Enabled {
		refresher = poll
	}
	router, err := web.NewRouter(st, registry, publisher, refresher, telemetryReporter, statusReporter, conf, logger)
	if err != nil {
		return app.Failed(err)
	}

	var listeners []app.Listener
	if conf.Diag.Enabled && (conf.Diag.IsMetricsEnabled() || conf.Diag.IsStatusEnabled()) {
		listeners = append(listeners, diag.NewServer(&conf.Diag, telemetryReporter, statusReporter, logger, errorChan))
	}
	if conf.Grpc.Enabled {
		grpcServer, err := grpc.NewServer(st, registry, publisher, telemetryReporter, statusReporter, conf, logger, errorChan)
		if err != nil {
			router.Close()
			return app.Failed(err)
		}
		listeners = append(listeners, grpcServer)
	}

	return app.Bootstrap(ctx, router, &app.Config{
		Conf:      conf,
		Providers: []app.Provider{poll},
		Listeners: listeners,
		ErrorChan: errorChan,
		Log:       logger,
	})
}
