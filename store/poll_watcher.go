package store

import (
	"os"
	"sync"
	"time"

	"github.com/nsepulse/pulse/log"
)

type fileStat struct {
	modTime time.Time
	size    int64
}

type pollWatcher struct {
	log        log.Logger
	poller     *time.Ticker
	closed     chan struct{}
	closedOnce sync.Once
	modified   chan struct{}
	paths      []string
	stats      map[string]fileStat
}

func newPollWatcher(paths []string, interval int, log log.Logger) (*pollWatcher, error) {
	fsLog := log.WithPrefix("poll-watcher")
	if interval < 1 {
		interval = 1
	}
	p := &pollWatcher{
		poller:   time.NewTicker(time.Duration(interval) * time.Second),
		log:      fsLog,
		modified: make(chan struct{}),
		closed:   make(chan struct{}),
		paths:    paths,
		stats:    make(map[string]fileStat, len(paths)),
	}
	for _, path := range paths {
		p.stats[path] = statOf(path)
	}
	fsLog.Reportf("started polling %d files", len(paths))
	p.run()
	return p, nil
}

func (p *pollWatcher) run() {
	go func() {
		for {
			select {
			case <-p.poller.C:
				changed := false
				for _, path := range p.paths {
					stat := statOf(path)
					prev := p.stats[path]
					if !stat.modTime.Equal(prev.modTime) || stat.size != prev.size {
						p.stats[path] = stat
						changed = true
					}
				}
				if changed {
					select {
					case p.modified <- struct{}{}:
					case <-p.closed:
					}
				}
			case <-p.closed:
				p.poller.Stop()
				p.log.Reportf("shutdown complete")
				return
			}
		}
	}()
}

func (p *pollWatcher) Modified() <-chan struct{} {
	return p.modified
}

func (p *pollWatcher) Close() {
	p.closedOnce.Do(func() {
		close(p.closed)
	})
}

// statOf returns the zero stat for missing files, so their creation counts
// as a modification.
func statOf(path string) fileStat {
	stat, err := os.Stat(path)
	if err != nil {
		return fileStat{}
	}
	return fileStat{modTime: stat.ModTime(), size: stat.Size()}
}
