// Package webhook serves the endpoint that asks the poller for an immediate
// option chain refresh. Requests may be signed with a shared key.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
)

const (
	SignatureHeader = "X-Pulse-Webhook-Signature-V1"
	IdHeader        = "X-Pulse-Webhook-ID"
	TimestampHeader = "X-Pulse-Webhook-Timestamp"
)

// Refresher starts an out-of-schedule fetch. It reports false when no
// refresh could be started.
type Refresher interface {
	Refresh() bool
}

type Server struct {
	refresher  Refresher
	signingKey string
	validFor   time.Duration
	now        func() time.Time
	log        log.Logger
}

func NewServer(refresher Refresher, conf *config.WebhookConfig, log log.Logger) *Server {
	return &Server{
		refresher:  refresher,
		signingKey: conf.SigningKey,
		validFor:   time.Duration(conf.SignatureValidFor) * time.Second,
		now:        time.Now,
		log:        log.WithPrefix("webhook"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.signingKey != "" && !s.validSignature(r) {
		http.Error(w, "Signature validation failed", http.StatusBadRequest)
		return
	}
	if !s.refresher.Refresh() {
		s.log.Debugf("webhook request received, but a refresh is already running")
		http.Error(w, "Refresh already in progress", http.StatusTooManyRequests)
		return
	}
	s.log.Infof("webhook request received, refreshing")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) validSignature(r *http.Request) bool {
	signatures := r.Header.Get(SignatureHeader)
	webhookId := r.Header.Get(IdHeader)
	timestampStr := r.Header.Get(TimestampHeader)
	if signatures == "" || webhookId == "" || timestampStr == "" {
		s.log.Debugf("request missing a signature validation header")
		return false
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil || timestamp < s.now().Add(-s.validFor).Unix() {
		s.log.Debugf("request is too old, rejecting")
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Debugf("reading request body failed, rejecting")
		return false
	}
	expected := Sign(s.signingKey, webhookId, timestampStr, body)
	for _, sig := range strings.Split(signatures, ",") {
		if hmac.Equal([]byte(strings.TrimSpace(sig)), []byte(expected)) {
			s.log.Debugf("signature validation passed")
			return true
		}
	}
	s.log.Debugf("no matching signatures found")
	return false
}

// Sign computes the base64 encoded HMAC-SHA256 signature of a webhook request.
func Sign(key string, id string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(id))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
