package mware

import (
	"net/http"
	"slices"
	"strings"
)

var defaultAllowedHeaders = []string{
	"Cache-Control",
	"Content-Type",
	"Content-Length",
	"Accept-Encoding",
	"If-None-Match",
}

var defaultExposedHeaders = []string{
	"Content-Length",
	"ETag",
	"Date",
	"Content-Encoding",
	RequestIdHeader,
}

var defaultAllowedOrigin = "*"

func CORS(allowedMethods []string, allowedOrigins []string, extraExposedHeaders []string, extraAllowedHeaders []string, next http.HandlerFunc) http.HandlerFunc {
	exposed := joinHeaders(defaultExposedHeaders, extraExposedHeaders)
	allowed := joinHeaders(defaultAllowedHeaders, extraAllowedHeaders)
	methods := strings.Join(allowedMethods, ",")
	return func(w http.ResponseWriter, r *http.Request) {
		origin := determineOrigin(r.Header.Get("Origin"), allowedOrigins)
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Expose-Headers", exposed)
		if origin != defaultAllowedOrigin {
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Credentials", "false")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.Header().Set("Access-Control-Allow-Headers", allowed)
			if methods != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
			}
		}
		next(w, r)
	}
}

func joinHeaders(defaults []string, extra []string) string {
	res := slices.Clone(defaults)
	for _, h := range extra {
		if !slices.ContainsFunc(res, func(s string) bool { return strings.EqualFold(s, h) }) {
			res = append(res, h)
		}
	}
	return strings.Join(res, ",")
}

func determineOrigin(requestOrigin string, allowedOrigins []string) string {
	if len(allowedOrigins) > 0 {
		if slices.Contains(allowedOrigins, requestOrigin) {
			return requestOrigin
		}
		return allowedOrigins[0]
	}
	if requestOrigin != "" {
		return requestOrigin
	}
	return defaultAllowedOrigin
}
