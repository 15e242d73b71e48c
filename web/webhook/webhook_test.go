package webhook

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
	"github.com/stretchr/testify/assert"
)

func TestWebhook_Signature_Bad(t *testing.T) {
	refresher := &fakeRefresher{ok: true}
	srv := NewServer(refresher, &config.WebhookConfig{SigningKey: "test-key", SignatureValidFor: 300}, log.NewNullLogger())

	t.Run("headers missing", func(t *testing.T) {
		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	t.Run("signature wrong GET", func(t *testing.T) {
		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", strings.NewReader(""))
		setHeaders(req, "wrong", "1", strconv.FormatInt(time.Now().Unix(), 10))
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	t.Run("signature wrong POST", func(t *testing.T) {
		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("body"))
		setHeaders(req, "wrong", "1", strconv.FormatInt(time.Now().Unix(), 10))
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	t.Run("signed with other key", func(t *testing.T) {
		res := httptest.NewRecorder()
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("body"))
		setHeaders(req, Sign("other-key", "1", ts, []byte("body")), "1", ts)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	t.Run("body tampered", func(t *testing.T) {
		res := httptest.NewRecorder()
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("changed"))
		setHeaders(req, Sign("test-key", "1", ts, []byte("body")), "1", ts)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	t.Run("invalid timestamp", func(t *testing.T) {
		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		setHeaders(req, Sign("test-key", "1", "yesterday", nil), "1", "yesterday")
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestWebhook_Signature_Expired(t *testing.T) {
	refresher := &fakeRefresher{ok: true}
	srv := NewServer(refresher, &config.WebhookConfig{SigningKey: "test-key", SignatureValidFor: 5}, log.NewNullLogger())
	ts := strconv.FormatInt(time.Now().Add(-10*time.Second).Unix(), 10)

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	setHeaders(req, Sign("test-key", "1", ts, nil), "1", ts)
	srv.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestWebhook_Signature_Ok(t *testing.T) {
	t.Run("signature OK GET", func(t *testing.T) {
		refresher := &fakeRefresher{ok: true}
		srv := NewServer(refresher, &config.WebhookConfig{SigningKey: "test-key", SignatureValidFor: 300}, log.NewNullLogger())
		ts := strconv.FormatInt(time.Now().Unix(), 10)

		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		setHeaders(req, Sign("test-key", "1", ts, nil), "1", ts)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusAccepted, res.Code)
		assert.Equal(t, int32(1), refresher.calls.Load())
	})
	t.Run("signature OK POST", func(t *testing.T) {
		refresher := &fakeRefresher{ok: true}
		srv := NewServer(refresher, &config.WebhookConfig{SigningKey: "test-key", SignatureValidFor: 300}, log.NewNullLogger())
		ts := strconv.FormatInt(time.Now().Unix(), 10)

		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"manual"}`))
		setHeaders(req, Sign("test-key", "1", ts, []byte(`{"reason":"manual"}`)), "1", ts)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusAccepted, res.Code)
		assert.Equal(t, int32(1), refresher.calls.Load())
	})
	t.Run("one of multiple signatures matches", func(t *testing.T) {
		refresher := &fakeRefresher{ok: true}
		srv := NewServer(refresher, &config.WebhookConfig{SigningKey: "test-key", SignatureValidFor: 300}, log.NewNullLogger())
		ts := strconv.FormatInt(time.Now().Unix(), 10)

		res := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		setHeaders(req, "old-signature,"+Sign("test-key", "1", ts, nil), "1", ts)
		srv.ServeHTTP(res, req)
		assert.Equal(t, http.StatusAccepted, res.Code)
	})
}

func TestWebhook_NoSigningKey(t *testing.T) {
	refresher := &fakeRefresher{ok: true}
	srv := NewServer(refresher, &config.WebhookConfig{}, log.NewNullLogger())

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestWebhook_RefreshInProgress(t *testing.T) {
	refresher := &fakeRefresher{ok: false}
	srv := NewServer(refresher, &config.WebhookConfig{}, log.NewNullLogger())

	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "Refresh already in progress\n", res.Body.String())
}

func TestSign(t *testing.T) {
	assert.Equal(t, Sign("key", "1", "100", []byte("body")), Sign("key", "1100", "", []byte("body")))
	assert.NotEqual(t, Sign("key", "1", "100", nil), Sign("key2", "1", "100", nil))
}

func setHeaders(req *http.Request, signature, id, timestamp string) {
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(IdHeader, id)
	req.Header.Set(TimestampHeader, timestamp)
}

type fakeRefresher struct {
	ok    bool
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh() bool {
	f.calls.Add(1)
	return f.ok
}
