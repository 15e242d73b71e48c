package status

import (
	"fmt"
	"net/http"
)

type clientInterceptor struct {
	http.RoundTripper

	reporter Reporter
	market   string
}

// InterceptFetch reports the outcome of every exchange request of a market.
func InterceptFetch(market string, reporter Reporter, transport http.RoundTripper) http.RoundTripper {
	return &clientInterceptor{reporter: reporter, RoundTripper: transport, market: market}
}

func (i *clientInterceptor) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := i.RoundTripper.RoundTrip(r)
	if err != nil {
		i.reporter.ReportError(i.market, "option chain fetch failed")
	} else {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			i.reporter.ReportOk(i.market, "option chain fetched")
		} else {
			i.reporter.ReportError(i.market, fmt.Sprintf("unexpected response received: %s", resp.Status))
		}
	}
	return resp, err
}
