package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/diag/status"
	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"golang.org/x/time/rate"
)

const (
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	optionChainPath = "/api/option-chain-indices"
	refererPath     = "/option-chain"
)

type Client interface {
	Fetch(ctx context.Context, market model.Market) (*model.OptionChain, error)
}

type client struct {
	baseUrl   *url.URL
	jar       http.CookieJar
	clients   map[model.Market]*http.Client
	fallback  *http.Client
	limiter   *rate.Limiter
	telemetry telemetry.Reporter
	log       log.Logger
}

func NewClient(conf *config.FetchConfig, telemetryReporter telemetry.Reporter, statusReporter status.Reporter, log log.Logger) (Client, error) {
	nseLog := log.WithLevel(conf.Log.GetLevel()).WithPrefix("nse")
	baseUrl, err := url.Parse(strings.TrimSuffix(conf.BaseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("nse: invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("nse: failed to create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if conf.HttpProxy.Url != "" {
		proxyUrl, err := url.Parse(conf.HttpProxy.Url)
		if err != nil {
			nseLog.Errorf("failed to parse proxy url: %s", conf.HttpProxy.Url)
		} else {
			transport.Proxy = http.ProxyURL(proxyUrl)
			nseLog.Reportf("using HTTP proxy: %s", conf.HttpProxy.Url)
		}
	}
	timeout := time.Duration(conf.Timeout) * time.Second

	newHttpClient := func(rt http.RoundTripper) *http.Client {
		return &http.Client{Transport: rt, Jar: jar, Timeout: timeout}
	}
	c := &client{
		baseUrl:   baseUrl,
		jar:       jar,
		clients:   make(map[model.Market]*http.Client, len(model.Markets)),
		fallback:  newHttpClient(telemetryReporter.InstrumentHttpClient(transport)),
		telemetry: telemetryReporter,
		log:       nseLog,
	}
	for _, m := range model.Markets {
		var rt http.RoundTripper = transport
		if statusReporter != nil {
			rt = status.InterceptFetch(m.String(), statusReporter, rt)
		}
		rt = telemetryReporter.InstrumentHttpClient(rt, telemetry.MarketKey.V(m.String()))
		c.clients[m] = newHttpClient(rt)
	}
	if conf.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(conf.RateLimit), 1)
	}
	return c, nil
}

// Fetch downloads the option chain of a market.
func (c *client) Fetch(ctx context.Context, market model.Market) (*model.OptionChain, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "fetch option chain", telemetry.MarketKey.V(market.String()))
	defer span.End()

	start := time.Now()
	chain, err := c.fetch(ctx, market)
	c.telemetry.RecordFetchDuration(time.Since(start), market.String(), err == nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.log.Debugf("option chain fetched for %s", market.Symbol())
	return chain, nil
}

func (c *client) fetch(ctx context.Context, market model.Market) (*model.OptionChain, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("nse: rate limiter: %w", err)
		}
	}
	httpClient, ok := c.clients[market]
	if !ok {
		return nil, fmt.Errorf("nse: unknown market '%s'", market)
	}
	c.prime(ctx)

	u := c.baseUrl.JoinPath(optionChainPath)
	u.RawQuery = url.Values{"symbol": []string{market.Symbol()}}.Encode()
	req, err := c.newRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nse: request failed for %s: %w", market.Symbol(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("nse: unexpected status code %d for %s", resp.StatusCode, market.Symbol())
	}
	var chain model.OptionChain
	if err = json.NewDecoder(resp.Body).Decode(&chain); err != nil {
		return nil, fmt.Errorf("nse: failed to decode option chain for %s: %w", market.Symbol(), err)
	}
	return &chain, nil
}

// prime visits the option chain page when the jar holds no session cookies
// yet, the exchange rejects API calls without them.
func (c *client) prime(ctx context.Context) {
	if len(c.jar.Cookies(c.baseUrl)) > 0 {
		return
	}
	req, err := c.newRequest(ctx, c.baseUrl.JoinPath(refererPath).String())
	if err != nil {
		return
	}
	resp, err := c.fallback.Do(req)
	if err != nil {
		c.log.Debugf("failed to acquire session cookies: %s", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *client) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("nse: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseUrl.JoinPath(refererPath).String())
	return req, nil
}
