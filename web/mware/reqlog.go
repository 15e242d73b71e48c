package mware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nsepulse/pulse/log"
)

const RequestIdHeader = "X-Request-Id"

const maxRequestIdLength = 64

type requestIdKey struct{}

type requestInterceptor struct {
	http.ResponseWriter

	statusCode     int
	responseLength uint64
}

func (r *requestInterceptor) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *requestInterceptor) Write(data []byte) (int, error) {
	r.responseLength += uint64(len(data))
	return r.ResponseWriter.Write(data)
}

func (r *requestInterceptor) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// RequestId propagates the X-Request-Id header of the request, or generates
// one when it's missing or malformed.
func RequestId(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIdHeader)
		if !validRequestId(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIdHeader, id)
		next(w, r.WithContext(context.WithValue(r.Context(), requestIdKey{}, id)))
	}
}

func RequestIdFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey{}).(string); ok {
		return id
	}
	return ""
}

func DebugLog(log log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return RequestId(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		interceptor := requestInterceptor{w, http.StatusOK, 0}
		id := RequestIdFrom(r.Context())

		log.Debugf("[%s] request starting %s %s %s", id, r.Proto, r.Method, r.URL)
		next(&interceptor, r)
		duration := time.Since(start)
		log.Debugf("[%s] request finished %s %s %s [status: %d] [duration: %dms] [response: %dB]",
			id, r.Proto, r.Method, r.URL, interceptor.statusCode, duration.Milliseconds(), interceptor.responseLength)
	})
}

func validRequestId(id string) bool {
	if id == "" || len(id) > maxRequestIdLength {
		return false
	}
	for _, c := range id {
		if !(c == '-' || c == '_' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
