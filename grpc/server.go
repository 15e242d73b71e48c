// Package grpc serves the signal service and the standard health and
// reflection services on a dedicated port.
package grpc

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "google.golang.org/grpc/encoding/gzip"
)

const defaultHealthCheckInterval = 5 * time.Second

type Server struct {
	signalService       *signalService
	grpcServer          *grpc.Server
	healthServer        *health.Server
	statusReporter      status.Reporter
	healthCheckInterval time.Duration
	log                 log.Logger
	conf                *config.Config
	errorChannel        chan error
	stop                chan struct{}
	wg                  sync.WaitGroup
	shutdownOnce        sync.Once
}

func NewServer(st store.Store, registry intraday.Registry, publisher pubsub.Publisher[model.Update], telemetryReporter telemetry.Reporter, statusReporter status.Reporter, conf *config.Config, logger log.Logger, errorChan chan error) (*Server, error) {
	grpcLog := logger.WithLevel(conf.Grpc.Log.GetLevel()).WithPrefix("grpc")
	if telemetryReporter == nil {
		telemetryReporter = telemetry.NewEmptyReporter()
	}
	opts := make([]grpc.ServerOption, 0)
	if conf.Tls.Enabled {
		t, err := conf.Tls.LoadTlsOptions()
		if err != nil {
			return nil, fmt.Errorf("grpc: failed to load the certificate and key pair: %w", err)
		}
		t.ServerName = ""
		opts = append(opts, grpc.Creds(credentials.NewTLS(t)))
		grpcLog.Reportf("using TLS version: %.1f", conf.Tls.MinVersion)
	}
	opts = telemetryReporter.InstrumentGrpc(opts)
	if grpcLog.Level() == log.Debug {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(DebugLogUnaryInterceptor(grpcLog)),
			grpc.ChainStreamInterceptor(DebugLogStreamInterceptor(grpcLog)))
	}

	svc := newSignalService(st, registry, publisher, telemetryReporter, grpcLog)
	grpcServer := grpc.NewServer(opts...)
	grpcServer.RegisterService(&signalServiceDesc, svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if conf.Grpc.ServerReflectionEnabled {
		reflection.Register(grpcServer)
		grpcLog.Reportf("server reflection enabled")
	}

	return &Server{
		signalService:       svc,
		grpcServer:          grpcServer,
		healthServer:        healthServer,
		statusReporter:      statusReporter,
		healthCheckInterval: defaultHealthCheckInterval,
		log:                 grpcLog,
		conf:                conf,
		errorChannel:        errorChan,
		stop:                make(chan struct{}),
	}, nil
}

// Listen binds the configured port and serves in the background. A bind
// failure is returned, serve failures are sent to the error channel.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.conf.Grpc.Port))
	if err != nil {
		return fmt.Errorf("error starting GRPC server on port: %d  %s", s.conf.Grpc.Port, err)
	}
	s.log.Reportf("GRPC server listening on port: %d", s.conf.Grpc.Port)
	s.serve(listener)
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.updateHealth()
	if s.statusReporter != nil {
		s.wg.Add(1)
		go s.watchHealth()
	}
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.errorChannel <- fmt.Errorf("error serving GRPC on port: %d  %s", s.conf.Grpc.Port, err)
		}
	}()
}

func (s *Server) watchHealth() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.updateHealth()
		case <-s.stop:
			return
		}
	}
}

// updateHealth maps the status report onto serving statuses: the overall
// status under the empty service name and the signal service, and one
// entry per market.
func (s *Server) updateHealth() {
	if s.statusReporter == nil {
		s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.healthServer.SetServingStatus(SignalServiceName, healthpb.HealthCheckResponse_SERVING)
		return
	}
	stat := s.statusReporter.GetStatus()
	overall := servingStatus(stat.Status)
	s.healthServer.SetServingStatus("", overall)
	s.healthServer.SetServingStatus(SignalServiceName, overall)
	for name, market := range stat.Markets {
		s.healthServer.SetServingStatus(name, servingStatus(market.Source.Status))
	}
}

func servingStatus(stat status.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	if stat == status.Down {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Reportf("initiating server shutdown")
		close(s.stop)
		s.wg.Wait()
		s.healthServer.Shutdown()
		s.signalService.Close()
		s.grpcServer.GracefulStop()
		s.log.Reportf("server shutdown complete")
	})
}
