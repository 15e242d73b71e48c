// Package intraday keeps the per-market series of intraday signal entries.
package intraday

import (
	"slices"
	"sync"

	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/model"
	"github.com/puzpuzpuz/xsync/v3"
)

type Registry interface {
	// Add appends the entry unless the last entry of the market has the
	// same time bucket. It reports whether the entry was appended.
	Add(market model.Market, entry model.IntradayEntry) bool
	Series(market model.Market) []model.IntradayEntry
}

type series struct {
	mu      sync.RWMutex
	entries []model.IntradayEntry
}

type registry struct {
	series    *xsync.MapOf[model.Market, *series]
	telemetry telemetry.Reporter
}

func NewRegistry(telemetryReporter telemetry.Reporter) Registry {
	if telemetryReporter == nil {
		telemetryReporter = telemetry.NewEmptyReporter()
	}
	return &registry{
		series:    xsync.NewMapOf[model.Market, *series](),
		telemetry: telemetryReporter,
	}
}

func (r *registry) Add(market model.Market, entry model.IntradayEntry) bool {
	s, _ := r.series.LoadOrCompute(market, func() *series {
		return &series{}
	})
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 && s.entries[n-1].Time == entry.Time {
		return false
	}
	s.entries = append(s.entries, entry)
	r.telemetry.AddIntradayEntry(market.String())
	return true
}

func (r *registry) Series(market model.Market) []model.IntradayEntry {
	s, ok := r.series.Load(market)
	if !ok {
		return []model.IntradayEntry{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}
