// Package stream fans the published snapshot updates out to the streaming
// connections (SSE and gRPC) of each market.
package stream

import (
	"sync"

	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
)

type Server interface {
	GetOrCreateStream(market model.Market) Stream
	Close()
}

type server struct {
	streams    map[model.Market]Stream
	store      store.Store
	publisher  pubsub.Publisher[model.Update]
	telemetry  telemetry.Reporter
	closed     bool
	log        log.Logger
	serverType string
	mu         sync.Mutex
}

func NewServer(st store.Store, publisher pubsub.Publisher[model.Update], telemetryReporter telemetry.Reporter, log log.Logger, serverType string) Server {
	if telemetryReporter == nil {
		telemetryReporter = telemetry.NewEmptyReporter()
	}
	return &server{
		streams:    make(map[model.Market]Stream),
		store:      st,
		publisher:  publisher,
		telemetry:  telemetryReporter,
		log:        log.WithPrefix("stream-server"),
		serverType: serverType,
	}
}

func (s *server) GetOrCreateStream(market model.Market) Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if str, ok := s.streams[market]; ok {
		return str
	}
	str := NewStream(market, s.store, s.publisher, s.telemetry, s.log, s.serverType)
	if s.closed {
		str.Close()
		return str
	}
	s.streams[market] = str
	return str
}

func (s *server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for market, str := range s.streams {
		str.Close()
		delete(s.streams, market)
	}
	s.log.Reportf("shutdown complete")
}
