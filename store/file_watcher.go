package store

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/nsepulse/pulse/log"
)

type fileWatcher struct {
	watch      *fsnotify.Watcher
	log        log.Logger
	closed     chan struct{}
	closedOnce sync.Once
	modified   chan struct{}
	realDir    string
}

func newFileWatcher(dir string, log log.Logger) (*fileWatcher, error) {
	fsLog := log.WithPrefix("file-watcher")
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		fsLog.Errorf("failed to eval symlink for %s: %s", dir, err)
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fsLog.Errorf("failed to create file watcher on %s: %s", realDir, err)
		return nil, err
	}
	if err = w.Add(realDir); err != nil {
		_ = w.Close()
		fsLog.Errorf("failed to create file watcher on %s: %s", realDir, err)
		return nil, err
	}
	f := &fileWatcher{
		watch:    w,
		log:      fsLog,
		closed:   make(chan struct{}),
		modified: make(chan struct{}),
		realDir:  realDir,
	}
	fsLog.Reportf("started watching %s", realDir)
	f.run()
	return f, nil
}

func (f *fileWatcher) run() {
	go func() {
		for {
			select {
			case event := <-f.watch.Events:
				if strings.HasSuffix(event.Name, fileSuffix) && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					select {
					case f.modified <- struct{}{}:
					case <-f.closed:
					}
				}
			case err := <-f.watch.Errors:
				f.log.Errorf("%s", err)
			case <-f.closed:
				_ = f.watch.Close()
				f.log.Reportf("shutdown complete")
				return
			}
		}
	}()
}

func (f *fileWatcher) Modified() <-chan struct{} {
	return f.modified
}

func (f *fileWatcher) Close() {
	f.closedOnce.Do(func() {
		close(f.closed)
	})
}
