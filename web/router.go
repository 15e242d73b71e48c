package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/internal/utils"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"github.com/nsepulse/pulse/web/api"
	"github.com/nsepulse/pulse/web/mware"
	"github.com/nsepulse/pulse/web/sse"
	"github.com/nsepulse/pulse/web/webhook"
)

// HttpRouter is the root component served on the main HTTP port.
type HttpRouter struct {
	router    *httprouter.Router
	sseServer *sse.Server
	apiServer *api.Server
	telemetry telemetry.Reporter
}

func NewRouter(st store.Store, registry intraday.Registry, publisher pubsub.Publisher[model.Update], refresher webhook.Refresher, telemetryReporter telemetry.Reporter, statusReporter status.Reporter, conf *config.Config, log log.Logger) (*HttpRouter, error) {
	httpLog := log.WithLevel(conf.Http.Log.GetLevel()).WithPrefix("http")
	if telemetryReporter == nil {
		telemetryReporter = telemetry.NewEmptyReporter()
	}

	r := &HttpRouter{
		router: &httprouter.Router{
			RedirectFixedPath:      true,
			RedirectTrailingSlash:  true,
			HandleMethodNotAllowed: true,
		},
		telemetry: telemetryReporter,
	}
	if conf.Http.Sse.Enabled {
		r.setupSSERoutes(&conf.Http.Sse, st, publisher, httpLog)
	}
	if conf.Http.Api.Enabled {
		location, err := time.LoadLocation(conf.Fetch.Timezone)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("http: invalid timezone '%s': %w", conf.Fetch.Timezone, err)
		}
		r.setupAPIRoutes(&conf.Http.Api, st, registry, location, conf.Intraday.IntervalMinutes, httpLog)
	}
	if conf.Http.Webhook.Enabled && refresher != nil {
		r.setupWebhookRoutes(&conf.Http.Webhook, refresher, httpLog)
	}
	if conf.Http.Status.Enabled && statusReporter != nil {
		r.setupStatusRoutes(statusReporter, httpLog)
	}
	return r, nil
}

func (s *HttpRouter) Handler() http.Handler {
	return s.router
}

func (s *HttpRouter) Close() {
	if s.sseServer != nil {
		s.sseServer.Close()
	}
}

type endpoint struct {
	handler http.HandlerFunc
	method  string
	path    string
}

func (s *HttpRouter) setupSSERoutes(conf *config.SseConfig, st store.Store, publisher pubsub.Publisher[model.Update], l log.Logger) {
	s.sseServer = sse.NewServer(st, publisher, s.telemetry, conf, l)
	endpoints := []endpoint{
		{path: "/api/stream", handler: http.HandlerFunc(s.sseServer.ServeHTTP), method: http.MethodGet},
		{path: "/sse/:market", handler: http.HandlerFunc(s.sseServer.ServeHTTP), method: http.MethodGet},
	}
	for _, endpoint := range endpoints {
		endpoint.handler = mware.AutoOptions(endpoint.handler)
		if len(conf.Headers) > 0 {
			endpoint.handler = mware.ExtraHeaders(conf.Headers, endpoint.handler)
		}
		if conf.CORS.Enabled {
			endpoint.handler = mware.CORS([]string{endpoint.method, http.MethodOptions}, conf.CORS.AllowedOrigins, utils.Keys(conf.Headers), nil, endpoint.handler)
		}
		if l.Level() == log.Debug {
			endpoint.handler = mware.DebugLog(l, endpoint.handler)
		}
		s.router.HandlerFunc(endpoint.method, endpoint.path, endpoint.handler)
		s.router.HandlerFunc(http.MethodOptions, endpoint.path, endpoint.handler)
	}
	l.Reportf("SSE enabled, accepting requests on paths: /api/stream, /sse/:market")
}

func (s *HttpRouter) setupAPIRoutes(conf *config.ApiConfig, st store.Store, registry intraday.Registry, location *time.Location, intervalMinutes int, l log.Logger) {
	s.apiServer = api.NewServer(st, registry, location, intervalMinutes, l)
	endpoints := []endpoint{
		{path: "/api/getSignals", handler: mware.GZip(s.apiServer.Signals), method: http.MethodGet},
		{path: "/api/getCallPutData", handler: mware.GZip(s.apiServer.CallPutData), method: http.MethodGet},
		{path: "/api/getIntradayData", handler: mware.GZip(s.apiServer.IntradayData), method: http.MethodGet},
	}
	for _, endpoint := range endpoints {
		if len(conf.AuthHeaders) > 0 {
			endpoint.handler = mware.HeaderAuth(conf.AuthHeaders, l, endpoint.handler)
		}
		endpoint.handler = mware.AutoOptions(endpoint.handler)
		if len(conf.Headers) > 0 {
			endpoint.handler = mware.ExtraHeaders(conf.Headers, endpoint.handler)
		}
		if conf.CORS.Enabled {
			endpoint.handler = mware.CORS([]string{endpoint.method, http.MethodOptions}, conf.CORS.AllowedOrigins, utils.Keys(conf.Headers), utils.Keys(conf.AuthHeaders), endpoint.handler)
		}
		endpoint.handler = s.telemetry.InstrumentHttp(endpoint.path, endpoint.method, endpoint.handler)
		if l.Level() == log.Debug {
			endpoint.handler = mware.DebugLog(l, endpoint.handler)
		}
		s.router.HandlerFunc(endpoint.method, endpoint.path, endpoint.handler)
		s.router.HandlerFunc(http.MethodOptions, endpoint.path, endpoint.handler)
	}
	l.Reportf("API enabled, accepting requests on path: /api/*")
}

func (s *HttpRouter) setupWebhookRoutes(conf *config.WebhookConfig, refresher webhook.Refresher, l log.Logger) {
	server := webhook.NewServer(refresher, conf, l)
	path := "/hook/refresh"
	handler := http.HandlerFunc(server.ServeHTTP)
	if conf.Auth.User != "" && conf.Auth.Password != "" {
		handler = mware.BasicAuth(conf.Auth.User, conf.Auth.Password, l, handler)
	}
	if len(conf.AuthHeaders) > 0 {
		handler = mware.HeaderAuth(conf.AuthHeaders, l, handler)
	}
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		h := s.telemetry.InstrumentHttp(path, method, handler)
		if l.Level() == log.Debug {
			h = mware.DebugLog(l, h)
		}
		s.router.HandlerFunc(method, path, h)
	}
	l.Reportf("webhook enabled, accepting requests on path: %s", path)
}

func (s *HttpRouter) setupStatusRoutes(reporter status.Reporter, l log.Logger) {
	path := "/status"
	handler := mware.AutoOptions(mware.GZip(reporter.HttpHandler()))
	handler = s.telemetry.InstrumentHttp(path, http.MethodGet, handler)
	s.router.HandlerFunc(http.MethodGet, path, handler)
	s.router.HandlerFunc(http.MethodOptions, path, handler)
	l.Reportf("status enabled, accepting requests on path: %s", path)
}
