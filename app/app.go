// Package app mounts a root component into the host: it starts the
// background providers, binds the HTTP listener and any extra listeners, and
// tears everything down again on failure or shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/web"
)

// Component is the root of the application, its handler is served on the
// main HTTP port.
type Component interface {
	Handler() http.Handler
	Close()
}

// Provider is a background service living as long as the mounted app.
type Provider interface {
	Start(ctx context.Context) error
	Close()
}

// Listener is a server bound next to the main HTTP listener (diag, gRPC).
type Listener interface {
	Listen() error
	Shutdown()
}

type Config struct {
	Conf      *config.Config
	Providers []Provider
	Listeners []Listener
	// ErrorChan receives serve failures after the app is mounted.
	ErrorChan chan error
	Log       log.Logger
}

type App struct {
	root      Component
	conf      *Config
	base      log.Logger
	log       log.Logger
	started   []Provider
	listening []Listener

	mu           sync.Mutex
	shutdownOnce sync.Once
}

// Bootstrap mounts root with the given configuration. The returned channel
// yields exactly one value: nil once everything is up, or the mount failure.
func Bootstrap(ctx context.Context, root Component, conf *Config) (*App, <-chan error) {
	logger := conf.Log
	if logger == nil {
		logger = log.NewNullLogger()
	}
	if conf.ErrorChan == nil {
		conf.ErrorChan = make(chan error)
	}
	a := &App{
		root: root,
		conf: conf,
		base: logger,
		log:  logger.WithPrefix("app"),
	}
	done := make(chan error, 1)
	go func() {
		err := a.mount(ctx)
		if err != nil {
			a.Shutdown()
		}
		done <- err
		close(done)
	}()
	return a, done
}

// Failed returns an app that never mounted along with its failure, for
// callers that could not even construct the root component.
func Failed(err error) (*App, <-chan error) {
	done := make(chan error, 1)
	done <- err
	close(done)
	return &App{conf: &Config{ErrorChan: make(chan error)}, log: log.NewNullLogger()}, done
}

// Errors delivers serve failures of the mounted listeners.
func (a *App) Errors() <-chan error {
	return a.conf.ErrorChan
}

// Shutdown closes the root component first so long-lived streams end, then
// stops the listeners and the providers in reverse start order. Calling it
// more than once is a no-op.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.mu.Lock()
		listening := a.listening
		started := a.started
		a.mu.Unlock()

		if a.root != nil {
			a.root.Close()
		}
		wg := sync.WaitGroup{}
		wg.Add(len(listening))
		for _, l := range listening {
			go func(l Listener) {
				defer wg.Done()
				l.Shutdown()
			}(l)
		}
		wg.Wait()

		for i := len(started) - 1; i >= 0; i-- {
			started[i].Close()
		}
	})
}

func (a *App) mount(ctx context.Context) error {
	for _, p := range a.conf.Providers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("mount cancelled: %w", err)
		}
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("failed to start provider: %w", err)
		}
		a.mu.Lock()
		a.started = append(a.started, p)
		a.mu.Unlock()
	}

	httpServer, err := web.NewServer(a.root.Handler(), a.base, a.conf.Conf, a.conf.ErrorChan)
	if err != nil {
		return fmt.Errorf("failed to configure HTTP server: %w", err)
	}
	listeners := append([]Listener{httpServer}, a.conf.Listeners...)
	for _, l := range listeners {
		if err := l.Listen(); err != nil {
			return err
		}
		a.mu.Lock()
		a.listening = append(a.listening, l)
		a.mu.Unlock()
	}
	a.log.Reportf("application mounted")
	return nil
}
