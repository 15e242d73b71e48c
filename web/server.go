package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
)

type Server struct {
	log          log.Logger
	conf         *config.Config
	httpServer   *http.Server
	errorChannel chan error
}

func NewServer(handler http.Handler, log log.Logger, conf *config.Config, errorChan chan error) (*Server, error) {
	httpLog := log.WithPrefix("http")
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(conf.Http.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if conf.Tls.Enabled {
		t, err := conf.Tls.LoadTlsOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to load the certificate and key pair: %w", err)
		}
		t.ServerName = ""
		httpServer.TLSConfig = t
		httpLog.Reportf("using TLS version: %.1f", conf.Tls.MinVersion)
	}
	srv := &Server{
		log:          httpLog,
		conf:         conf,
		httpServer:   httpServer,
		errorChannel: errorChan,
	}
	return srv, nil
}

// Listen binds the configured port and serves in the background. A bind
// failure is returned, serve failures are sent to the error channel.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("error starting HTTP server on port: %d  %s", s.conf.Http.Port, err)
	}
	s.log.Reportf("HTTP server listening on port: %d", s.conf.Http.Port)

	go func() {
		var httpErr error
		if s.conf.Tls.Enabled {
			httpErr = s.httpServer.ServeTLS(listener, "", "")
		} else {
			httpErr = s.httpServer.Serve(listener)
		}

		if !errors.Is(httpErr, http.ErrServerClosed) {
			s.errorChannel <- fmt.Errorf("error serving HTTP on port: %d  %s", s.conf.Http.Port, httpErr)
		}
	}()
	return nil
}

func (s *Server) Shutdown() {
	s.log.Reportf("initiating server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.Errorf("shutdown error: %v", err)
	}
	s.log.Reportf("server shutdown complete")
}
