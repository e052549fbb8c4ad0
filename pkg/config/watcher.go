package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"nanoweb/pkg/logger"
)

// ChangeHandler is called with the freshly loaded configuration.
type ChangeHandler func(*Config) error

// Watcher monitors the configuration file and applies reloadable sections.
type Watcher struct {
	loader   *Loader
	config   *Config
	log      *logger.Logger
	handlers []ChangeHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a new configuration watcher.
func NewWatcher(loader *Loader, cfg *Config, log *logger.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		config: cfg,
		log:    log,
	}
}

// AddHandler registers a handler to be called when configuration changes.
func (w *Watcher) AddHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the configuration file for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.watching = true
	w.mu.Unlock()

	w.loader.viper.OnConfigChange(func(e fsnotify.Event) {
		if !w.isWatching() {
			return
		}
		w.log.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		w.reload()
	})
	w.loader.viper.WatchConfig()

	return nil
}

// Stop stops applying changes. Viper keeps its file watch open until exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watching = false
}

func (w *Watcher) isWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) reload() {
	next, err := w.loader.Reload()
	if err != nil {
		w.log.Warn("Error reloading config", zap.Error(err))
		return
	}
	if err := ValidateConfig(next); err != nil {
		w.log.Warn("Ignoring invalid config change", zap.Error(err))
		return
	}

	w.config.ApplyReload(next)
	w.notifyHandlers(w.config)
}

// notifyHandlers calls all registered handlers with the updated configuration.
func (w *Watcher) notifyHandlers(cfg *Config) {
	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(cfg); err != nil {
			w.log.Warn("Error in config change handler", zap.Error(err))
		}
	}
}
