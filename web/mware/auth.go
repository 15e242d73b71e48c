package mware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/nsepulse/pulse/log"
)

func BasicAuth(user string, pass string, logger log.Logger, next http.HandlerFunc) http.HandlerFunc {
	expUserHash := sha256.Sum256([]byte(user))
	expPassHash := sha256.Sum256([]byte(pass))
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			logger.Debugf("basic auth is configured but it's missing from the request")
			w.Header().Set("WWW-Authenticate", `Basic realm="pulse"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		// hashing keeps the comparison length independent
		userHash := sha256.Sum256([]byte(username))
		passHash := sha256.Sum256([]byte(password))
		userMatch := subtle.ConstantTimeCompare(userHash[:], expUserHash[:]) == 1
		passMatch := subtle.ConstantTimeCompare(passHash[:], expPassHash[:]) == 1
		if !userMatch || !passMatch {
			logger.Debugf("basic auth credential validation failed")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func HeaderAuth(authHeaders map[string]string, logger log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		for k, v := range authHeaders {
			h := r.Header.Get(k)
			if subtle.ConstantTimeCompare([]byte(h), []byte(v)) != 1 {
				logger.Debugf("auth header (%s) validation failed", k)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}
