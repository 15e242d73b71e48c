package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/internal/utils"
	"github.com/nsepulse/pulse/model"
)

type SourceType string
type HealthStatus string

const (
	Store = "store"

	RemoteSrc SourceType = "remote"
	StoreSrc  SourceType = "store"

	Healthy      HealthStatus = "healthy"
	Degraded     HealthStatus = "degraded"
	Initializing HealthStatus = "initializing"
	Down         HealthStatus = "down"
	NA           HealthStatus = "n/a"
)

const maxRecordCount = 5
const maxLastErrorsMeaningDegraded = 2

type Reporter interface {
	ReportOk(component string, message string)
	ReportError(component string, message string)
	GetStatus() Status

	HttpHandler() http.HandlerFunc
}

type Status struct {
	Status  HealthStatus             `json:"status"`
	Markets map[string]*MarketStatus `json:"markets"`
	Store   StoreStatus              `json:"store"`
}

type MarketStatus struct {
	Symbol string       `json:"symbol"`
	Source SourceStatus `json:"source"`
}

type SourceStatus struct {
	Type    SourceType   `json:"type"`
	Status  HealthStatus `json:"status"`
	Records []string     `json:"records"`
}

type StoreStatus struct {
	Type    string       `json:"type"`
	Status  HealthStatus `json:"status"`
	Records []string     `json:"records"`
}

type record struct {
	time    time.Time
	isError bool
	message string
}

type reporter struct {
	records map[string][]record
	mu      sync.RWMutex
	status  Status
}

func NewNullReporter() Reporter {
	return &reporter{records: make(map[string][]record), status: Status{Markets: map[string]*MarketStatus{}}}
}

func NewReporter(conf *config.Config) Reporter {
	r := &reporter{
		records: make(map[string][]record),
		status: Status{
			Status: Initializing,
			Store: StoreStatus{
				Type:   conf.Store.Kind(),
				Status: Initializing,
			},
		},
	}
	markets := model.Markets
	srcType := StoreSrc
	if conf.Fetch.Enabled {
		srcType = RemoteSrc
		if parsed, err := model.ParseMarkets(utils.DedupStringSlice(conf.Fetch.Markets)); err == nil {
			markets = parsed
		}
	}
	r.status.Markets = make(map[string]*MarketStatus, len(markets))
	for _, m := range markets {
		r.status.Markets[m.String()] = &MarketStatus{
			Symbol: m.Symbol(),
			Source: SourceStatus{
				Type:   srcType,
				Status: Initializing,
			},
		}
	}
	if conf.Store.Kind() == "memory" {
		r.status.Store.Status = NA
	}
	return r
}

func (r *reporter) ReportOk(component string, message string) {
	r.appendRecord(component, "[ok] "+message, false)
}

func (r *reporter) ReportError(component string, message string) {
	r.appendRecord(component, "[error] "+message, true)
}

func (r *reporter) HttpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, err := json.Marshal(r.GetStatus())
		if err != nil {
			http.Error(w, "Error producing status", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(status)
	}
}

func (r *reporter) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := r.status
	res.Markets = make(map[string]*MarketStatus, len(r.status.Markets))
	for key, m := range r.status.Markets {
		c := *m
		res.Markets[key] = &c
	}
	return res
}

func (r *reporter) checkStatus(records []record) ([]string, HealthStatus) {
	length := len(records)
	targetRecords := make([]string, length)
	var errorCount = 0
	for i, msg := range records {
		targetRecords[i] = msg.time.UTC().Format(time.RFC1123) + ": " + msg.message
		if i >= length-maxLastErrorsMeaningDegraded {
			if msg.isError {
				errorCount++
			} else {
				errorCount--
			}
		}
	}
	if errorCount > 0 && errorCount >= utils.Min(maxLastErrorsMeaningDegraded, length) {
		return targetRecords, Degraded
	}
	return targetRecords, Healthy
}

func (r *reporter) appendRecord(component string, message string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, ok := r.records[component]
	if !ok {
		recs = make([]record, 0, maxRecordCount)
	}
	recs = append(recs, record{time: time.Now(), isError: isError, message: message})
	if len(recs) > maxRecordCount {
		recs = recs[1:]
	}
	r.records[component] = recs
	rec, stat := r.checkStatus(recs)
	if component == Store {
		r.status.Store.Records = rec
		r.status.Store.Status = stat
		return
	}
	market, ok := r.status.Markets[component]
	if !ok {
		return
	}
	market.Source.Records = rec
	if stat == Degraded && (market.Source.Status == Initializing || market.Source.Status == Down) {
		stat = Down
	}
	market.Source.Status = stat

	allDown := true
	hasDegraded := false
	for _, m := range r.status.Markets {
		if m.Source.Status != Down {
			allDown = false
		}
		if m.Source.Status != Healthy {
			hasDegraded = true
		}
	}
	if !hasDegraded && !allDown {
		r.status.Status = Healthy
	} else {
		if hasDegraded {
			r.status.Status = Degraded
		}
		if allDown {
			r.status.Status = Down
		}
	}
}
