package stsserver

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/internal/metrics"
	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

// reloadGuides loads the guides file and swaps it into store. On error the
// current registry stays active.
func reloadGuides(cfg *config.Config, store *guides.Store) (*guides.Registry, error) {
	reg, err := guides.LoadOrBuiltin(cfg.Guides.File)
	if err != nil {
		return nil, err
	}
	store.Swap(reg)
	return reg, nil
}

func runReload(trigger string, cfg *config.Config, store *guides.Store, m *metrics.Metrics, logger *zap.Logger, mu *sync.Mutex) {
	mu.Lock()
	reg, err := reloadGuides(cfg, store)
	mu.Unlock()
	if err != nil {
		m.ObserveReload(trigger, 0, err)
		logger.Error("reload failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	m.ObserveReload(trigger, reg.Len(), nil)
	logger.Info("reload ok",
		zap.String("trigger", trigger),
		zap.String("file", cfg.Guides.File),
		zap.Strings("actions", reg.Actions()),
	)
}

// installReloadSignalHandler reloads guides on SIGHUP. The returned func
// stops the handler.
func installReloadSignalHandler(cfg *config.Config, store *guides.Store, m *metrics.Metrics, logger *zap.Logger, mu *sync.Mutex) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				runReload("signal", cfg, store, m, logger, mu)
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// installGuidesAutoReload watches the directory holding the guides file, so
// editors that save by rename are still seen, and reloads after a quiet
// period of guides.auto_reload.debounce_ms.
func installGuidesAutoReload(cfg *config.Config, store *guides.Store, m *metrics.Metrics, logger *zap.Logger, mu *sync.Mutex) (io.Closer, error) {
	if cfg == nil || store == nil || mu == nil {
		return nil, nil
	}
	if !cfg.Guides.AutoReload.Enabled {
		return nil, nil
	}
	file := strings.TrimSpace(cfg.Guides.File)
	if file == "" {
		return nil, nil
	}
	dir := filepath.Dir(file)
	debounce := time.Duration(cfg.Guides.AutoReload.DebounceMs) * time.Millisecond

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		resetTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			timerC = timer.C
		}

		for {
			select {
			case <-stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				runReload("auto", cfg, store, m, logger, mu)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("guides auto-reload watcher error", zap.Error(err))
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldTriggerGuidesReload(evt, file) {
					resetTimer()
				}
			}
		}
	}()

	logger.Info("guides auto-reload enabled",
		zap.String("file", file),
		zap.Int("debounce_ms", cfg.Guides.AutoReload.DebounceMs),
	)
	return closerFunc(func() error {
		close(stopCh)
		_ = watcher.Close()
		<-doneCh
		return nil
	}), nil
}

func shouldTriggerGuidesReload(evt fsnotify.Event, target string) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(evt.Name) == filepath.Clean(target)
}
