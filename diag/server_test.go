package diag

import (
	"io"
	"net/http"
	"testing"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	errChan := make(chan error)
	conf := config.DiagConfig{
		Port:    5051,
		Enabled: true,
		Status:  config.StatusConfig{Enabled: true},
		Metrics: config.MetricsConfig{Enabled: true, Prometheus: config.PrometheusConfig{Enabled: true}},
	}

	statusReporter := status.NewReporter(&config.Config{Fetch: config.FetchConfig{Enabled: true, Markets: []string{"nifty"}}})
	statusReporter.ReportOk("nifty", "option chain fetched")
	telemetryReporter := telemetry.NewReporter(&conf, "0.0.0", log.NewNullLogger())
	defer telemetryReporter.Shutdown()
	telemetryReporter.AddIntradayEntry("nifty")

	srv := NewServer(&conf, telemetryReporter, statusReporter, log.NewNullLogger(), errChan)
	require.NoError(t, srv.Listen())

	resp, err := http.Get("http://localhost:5051/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"nifty":{"symbol":"NIFTY"`)

	resp, err = http.Get("http://localhost:5051/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pulse_intraday_entries_total")

	srv.Shutdown()

	assert.Nil(t, readFromErrChan(errChan))
}

func TestNewServer_NotEnabled(t *testing.T) {
	errChan := make(chan error)
	conf := config.DiagConfig{
		Port:    5052,
		Enabled: true,
		Status:  config.StatusConfig{Enabled: false},
		Metrics: config.MetricsConfig{Enabled: false},
	}

	srv := NewServer(&conf, telemetry.NewEmptyReporter(), status.NewNullReporter(), log.NewNullLogger(), errChan)
	require.NoError(t, srv.Listen())

	resp, err := http.Get("http://localhost:5052/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get("http://localhost:5052/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv.Shutdown()

	assert.Nil(t, readFromErrChan(errChan))
}

func TestNewServer_NilReporters(t *testing.T) {
	errChan := make(chan error)
	conf := config.DiagConfig{
		Port:    5053,
		Enabled: true,
		Status:  config.StatusConfig{Enabled: true},
		Metrics: config.MetricsConfig{Enabled: true, Prometheus: config.PrometheusConfig{Enabled: true}},
	}
	srv := NewServer(&conf, nil, nil, log.NewNullLogger(), errChan)
	require.NoError(t, srv.Listen())

	resp, err := http.Get("http://localhost:5053/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get("http://localhost:5053/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv.Shutdown()

	assert.Nil(t, readFromErrChan(errChan))
}

func TestNewServer_PortInUse(t *testing.T) {
	errChan := make(chan error)
	conf := config.DiagConfig{Port: 5054, Enabled: true}

	srv1 := NewServer(&conf, nil, nil, log.NewNullLogger(), errChan)
	require.NoError(t, srv1.Listen())
	defer srv1.Shutdown()

	srv2 := NewServer(&conf, nil, nil, log.NewNullLogger(), errChan)
	assert.ErrorContains(t, srv2.Listen(), "error starting diag HTTP server on port: 5054")
}

func readFromErrChan(ch chan error) error {
	select {
	case val, ok := <-ch:
		if ok {
			return val
		}
	default:
		return nil
	}
	return nil
}
