// Package poller periodically fetches the option chains, stores the
// resulting snapshots, records intraday entries and publishes updates.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsepulse/pulse/analysis"
	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/internal/utils"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/nse"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"github.com/robfig/cron/v3"
)

type Poller struct {
	fetchConf       *config.FetchConfig
	intervalMinutes int
	markets         []model.Market
	location        *time.Location
	client          nse.Client
	store           store.Store
	registry        intraday.Registry
	publisher       pubsub.Publisher[model.Update]
	cron            *cron.Cron
	log             log.Logger
	now             func() time.Time

	ctx        context.Context
	ctxCancel  func()
	wg         sync.WaitGroup
	refreshing atomic.Bool
	mu         sync.Mutex
	closed     bool
	closedOnce sync.Once
}

func New(conf *config.Config, client nse.Client, st store.Store, registry intraday.Registry, publisher pubsub.Publisher[model.Update], log log.Logger) (*Poller, error) {
	pollLog := log.WithLevel(conf.Fetch.Log.GetLevel()).WithPrefix("poller")
	location, err := time.LoadLocation(conf.Fetch.Timezone)
	if err != nil {
		return nil, fmt.Errorf("poller: invalid timezone '%s': %w", conf.Fetch.Timezone, err)
	}
	markets, err := model.ParseMarkets(utils.DedupStringSlice(conf.Fetch.Markets))
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	if len(markets) == 0 || !conf.Fetch.Enabled {
		markets = model.Markets
	}
	p := &Poller{
		fetchConf:       &conf.Fetch,
		intervalMinutes: conf.Intraday.IntervalMinutes,
		markets:         markets,
		location:        location,
		client:          client,
		store:           st,
		registry:        registry,
		publisher:       publisher,
		log:             pollLog,
		now:             time.Now,
	}
	cronLog := cron.PrintfLogger(pollLog)
	p.cron = cron.New(cron.WithLocation(location), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	p.ctx, p.ctxCancel = context.WithCancel(context.Background())
	return p, nil
}

// Start schedules the periodic fetch and runs the first one right away.
// When fetching is disabled, it republishes the stored snapshots whenever
// the store reports an external modification.
func (p *Poller) Start(_ context.Context) error {
	if !p.fetchConf.Enabled {
		if n, ok := p.store.(store.Notifier); ok && n.Modified() != nil {
			p.wg.Add(1)
			go p.watchStore(n.Modified())
			p.log.Reportf("fetching disabled, following store modifications")
		} else {
			p.log.Reportf("fetching disabled")
		}
		return nil
	}
	if p.client == nil {
		return errors.New("poller: no exchange client configured")
	}
	_, err := p.cron.AddFunc(p.fetchConf.Schedule, func() {
		p.RunOnce(p.ctx)
	})
	if err != nil {
		return fmt.Errorf("poller: invalid schedule '%s': %w", p.fetchConf.Schedule, err)
	}
	p.cron.Start()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.RunOnce(p.ctx)
	}()
	p.log.Reportf("fetching %v on schedule '%s' (%s)", p.markets, p.fetchConf.Schedule, p.location)
	return nil
}

// RunOnce fetches every configured market once. A failing market does not
// affect the others.
func (p *Poller) RunOnce(ctx context.Context) {
	for _, m := range p.markets {
		if ctx.Err() != nil {
			return
		}
		if err := p.poll(ctx, m); err != nil {
			p.log.Errorf("%s", err)
		}
	}
}

// Refresh starts an immediate fetch of every market in the background,
// unless fetching is disabled or a triggered fetch is still running. It
// reports whether a fetch was started.
func (p *Poller) Refresh() bool {
	if !p.fetchConf.Enabled || p.client == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.refreshing.CompareAndSwap(false, true) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.refreshing.Store(false)
		p.log.Infof("refresh triggered")
		p.RunOnce(p.ctx)
	}()
	return true
}

func (p *Poller) poll(ctx context.Context, market model.Market) error {
	chain, err := p.client.Fetch(ctx, market)
	if err != nil {
		return fmt.Errorf("failed to fetch option chain of %s: %w", market.Symbol(), err)
	}
	if chain == nil || chain.Records == nil {
		p.log.Warnf("no data available for %s", market.Symbol())
		return nil
	}
	if chain.Records.UnderlyingValue == nil {
		p.log.Warnf("missing underlying value for %s", market.Symbol())
		return nil
	}
	underlying := *chain.Records.UnderlyingValue
	p.log.Infof("%s underlying value: %.2f", market.Symbol(), underlying)

	now := p.now().In(p.location)
	calls, puts := analysis.FilterCallPut(chain.Records.Data, underlying, nil)
	snapshot := &model.Snapshot{
		UnderlyingValue: underlying,
		CallData:        calls,
		PutData:         puts,
		FetchedAt:       now.UTC(),
	}
	if err = p.store.Set(ctx, market, snapshot); err != nil {
		p.log.Errorf("%s", err)
	}
	p.publish(market, snapshot, now)
	return nil
}

func (p *Poller) publish(market model.Market, snapshot *model.Snapshot, at time.Time) {
	update := model.Update{Market: market, Snapshot: snapshot}
	entry := analysis.IntradayOf(snapshot, at, p.intervalMinutes)
	if p.registry.Add(market, entry) {
		p.log.Debugf("added %s intraday entry for %s", market.Symbol(), entry.Time)
		update.Entry = &entry
	} else {
		p.log.Debugf("%s intraday entry already exists for %s", market.Symbol(), entry.Time)
	}
	p.publisher.Publish(update)
}

func (p *Poller) watchStore(modified <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-modified:
			for _, m := range p.markets {
				snapshot, err := p.store.Get(p.ctx, m)
				if err != nil {
					if !errors.Is(err, store.ErrNotFound) {
						p.log.Errorf("%s", err)
					}
					continue
				}
				p.publish(m, snapshot, p.now().In(p.location))
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) Close() {
	p.closedOnce.Do(func() {
		p.log.Reportf("initiating shutdown")
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		stopped := p.cron.Stop()
		p.ctxCancel()
		<-stopped.Done()
		p.wg.Wait()
		p.log.Reportf("shutdown complete")
	})
}
