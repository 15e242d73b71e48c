package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"github.com/nsepulse/pulse/stream"
	"github.com/nsepulse/pulse/web/api"
)

const streamMarketName = "market"

type Server struct {
	streamServer stream.Server
	config       *config.SseConfig
	logger       log.Logger
	closed       chan struct{}
	closedOnce   sync.Once
}

func NewServer(st store.Store, publisher pubsub.Publisher[model.Update], telemetryReporter telemetry.Reporter, conf *config.SseConfig, logger log.Logger) *Server {
	sseLog := logger.WithLevel(conf.Log.GetLevel()).WithPrefix("sse")
	return &Server{
		streamServer: stream.NewServer(st, publisher, telemetryReporter, sseLog, "sse"),
		logger:       sseLog,
		config:       conf,
		closed:       make(chan struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusNotImplemented)
		return
	}

	raw := httprouter.ParamsFromContext(r.Context()).ByName(streamMarketName)
	if raw == "" {
		raw = r.URL.Query().Get(streamMarketName)
	}
	market, err := model.ParseMarket(raw)
	if err != nil {
		api.WriteError(w, "Invalid market parameter", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Add("X-Accel-Buffering", "no")

	str := s.streamServer.GetOrCreateStream(market)
	conn := str.CreateConnection(r.Context())
	defer str.CloseConnection(conn)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var heartBeat <-chan time.Time
	if s.config.HeartBeatInterval > 0 {
		ticker := time.NewTicker(time.Duration(s.config.HeartBeatInterval) * time.Second)
		defer ticker.Stop()
		heartBeat = ticker.C
	}

	for {
		select {
		case snapshot := <-conn.Receive():
			data, e := json.Marshal(snapshot)
			if e != nil {
				s.logger.Errorf("%s", e)
				continue
			}
			if _, e = fmt.Fprintf(w, "data: %s\n\n", data); e != nil {
				s.logger.Errorf("%s", e)
				return
			}
			flusher.Flush()
		case <-heartBeat:
			if _, e := fmt.Fprint(w, ": heartbeat\n\n"); e != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-s.closed:
			return
		}
	}
}

func (s *Server) Close() {
	s.closedOnce.Do(func() {
		close(s.closed)
	})
	s.streamServer.Close()
}
