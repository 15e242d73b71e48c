package diag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
)

type Server struct {
	httpServer   *http.Server
	log          log.Logger
	conf         *config.DiagConfig
	errorChannel chan error
}

func NewServer(conf *config.DiagConfig, telemetryReporter telemetry.Reporter, statusReporter status.Reporter, log log.Logger, errorChan chan error) *Server {
	diagLog := log.WithPrefix("diag")
	mux := http.NewServeMux()

	if conf.IsMetricsEnabled() && conf.IsPrometheusExporterEnabled() && telemetryReporter != nil {
		mux.Handle("/metrics", telemetryReporter.GetPrometheusHttpHandler())
		diagLog.Reportf("metrics enabled, accepting requests on path: /metrics")
	}

	if conf.IsStatusEnabled() && statusReporter != nil {
		mux.Handle("/status", statusReporter.HttpHandler())
		diagLog.Reportf("status enabled, accepting requests on path: /status")
	}

	setupDebugEndpoints(mux)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(conf.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		log:          diagLog,
		httpServer:   httpServer,
		conf:         conf,
		errorChannel: errorChan,
	}
}

func (s *Server) Listen() error {
	if s.httpServer == nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("error starting diag HTTP server on port: %d  %s", s.conf.Port, err)
	}
	s.log.Reportf("diag HTTP server listening on port: %d", s.conf.Port)

	go func() {
		httpErr := s.httpServer.Serve(listener)

		if !errors.Is(httpErr, http.ErrServerClosed) {
			s.errorChannel <- fmt.Errorf("error serving diag HTTP on port: %d  %s", s.conf.Port, httpErr)
		}
	}()
	return nil
}

func (s *Server) Shutdown() {
	if s.httpServer == nil {
		return
	}

	s.log.Reportf("initiating server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.Errorf("shutdown error: %s", err)
	}

	s.log.Reportf("server shutdown complete")
}
