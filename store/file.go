package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nsepulse/pulse/config"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
)

const fileSuffix = "_option_chain.json"

type watcher interface {
	Modified() <-chan struct{}
	Close()
}

type fileStore struct {
	*notifier
	dir        string
	watcher    watcher
	log        log.Logger
	mu         sync.Mutex
	closed     chan struct{}
	closedOnce sync.Once
}

func newFileStore(conf *config.FileStoreConfig, log log.Logger) (*fileStore, error) {
	fileLog := log.WithPrefix("file")
	if err := os.MkdirAll(conf.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: failed to create directory %s: %w", conf.Dir, err)
	}
	f := &fileStore{
		notifier: newNotifier(),
		dir:      conf.Dir,
		log:      fileLog,
		closed:   make(chan struct{}),
	}
	if conf.Watch {
		var err error
		if conf.Polling {
			f.watcher, err = newPollWatcher(f.paths(), conf.PollInterval, fileLog)
		} else {
			f.watcher, err = newFileWatcher(conf.Dir, fileLog)
			if err != nil {
				f.watcher, err = newPollWatcher(f.paths(), conf.PollInterval, fileLog)
			}
		}
		if err != nil {
			fileLog.Errorf("snapshot files are not watched: %s", err)
		} else {
			f.run()
		}
	}
	fileLog.Reportf("using directory %s for snapshot storage", conf.Dir)
	return f, nil
}

func (f *fileStore) run() {
	go func() {
		for {
			select {
			case <-f.watcher.Modified():
				f.log.Debugf("snapshot files modified")
				f.Notify()
			case <-f.closed:
				f.watcher.Close()
				return
			}
		}
	}()
}

func (f *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set writes the snapshot as indented JSON, the format other tools read.
// The content goes to a temporary file first and replaces the snapshot file
// with a rename, so readers never see a partially written file.
func (f *fileStore) Set(_ context.Context, key string, value []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, value, "", "    "); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err = tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

func (f *fileStore) Shutdown() {
	f.closedOnce.Do(func() {
		f.notifier.Close()
		close(f.closed)
		f.log.Reportf("shutdown complete")
	})
}

func (f *fileStore) path(key string) string {
	return filepath.Join(f.dir, key+fileSuffix)
}

func (f *fileStore) paths() []string {
	res := make([]string, 0, len(model.Markets))
	for _, m := range model.Markets {
		res = append(res, f.path(m.String()))
	}
	return res
}
