// Package api serves the option chain signals over plain JSON endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nsepulse/pulse/analysis"
	"github.com/nsepulse/pulse/internal/utils"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/store"
)

const marketParamName = "market"

const genericFailure = "the request failed; please check the logs for more details"

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	store           store.Store
	registry        intraday.Registry
	location        *time.Location
	intervalMinutes int
	now             func() time.Time
	logger          log.Logger
}

func NewServer(st store.Store, registry intraday.Registry, location *time.Location, intervalMinutes int, log log.Logger) *Server {
	return &Server{
		store:           st,
		registry:        registry,
		location:        location,
		intervalMinutes: intervalMinutes,
		now:             time.Now,
		logger:          log.WithPrefix("api"),
	}
}

// Signals responds with the latest snapshot of every market, keyed by the
// market's display name.
func (s *Server) Signals(w http.ResponseWriter, r *http.Request) {
	res := make(map[string]*model.Snapshot, len(model.Markets))
	for _, m := range model.Markets {
		snap, err := s.store.Get(r.Context(), m)
		if err != nil {
			s.writeStoreError(w, m, err, fmt.Sprintf("Snapshot not found: %s", m))
			return
		}
		res[m.DisplayName()] = snap
	}
	s.writeJson(w, r, res)
}

func (s *Server) CallPutData(w http.ResponseWriter, r *http.Request) {
	market, ok := parseMarket(w, r)
	if !ok {
		return
	}
	snap, err := s.store.Get(r.Context(), market)
	if err != nil {
		s.writeStoreError(w, market, err, fmt.Sprintf("Error fetching data for %s: Snapshot not found", market))
		return
	}
	s.writeJson(w, r, snap)
}

// IntradayData computes the entry of the current time bucket from the stored
// snapshot, records it unless the bucket is already taken and responds with
// the whole series of the market.
func (s *Server) IntradayData(w http.ResponseWriter, r *http.Request) {
	market, ok := parseMarket(w, r)
	if !ok {
		return
	}
	snap, err := s.store.Get(r.Context(), market)
	if err != nil {
		s.writeStoreError(w, market, err, fmt.Sprintf("Snapshot not found: %s", market))
		return
	}
	entry := analysis.IntradayOf(snap, s.now().In(s.location), s.intervalMinutes)
	if s.registry.Add(market, entry) {
		s.logger.Infof("added new intraday entry for %s at %s", market, entry.Time)
	} else {
		s.logger.Debugf("duplicate intraday entry for %s at %s, skipping update", market, entry.Time)
	}
	s.writeJson(w, r, s.registry.Series(market))
}

func parseMarket(w http.ResponseWriter, r *http.Request) (model.Market, bool) {
	market, err := model.ParseMarket(r.URL.Query().Get(marketParamName))
	if err != nil {
		WriteError(w, "Invalid market parameter", http.StatusBadRequest)
		return "", false
	}
	return market, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, market model.Market, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, notFoundMsg, http.StatusNotFound)
		return
	}
	s.logger.Errorf("failed to read the snapshot of %s: %s", market, err)
	WriteError(w, genericFailure, http.StatusInternalServerError)
}

func (s *Server) writeJson(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Errorf("failed to encode response: %s", err)
		WriteError(w, genericFailure, http.StatusInternalServerError)
		return
	}
	etag := utils.GenerateEtag(data)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// WriteError responds with a JSON error body.
func WriteError(w http.ResponseWriter, msg string, code int) {
	data, _ := json.Marshal(errorResponse{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
