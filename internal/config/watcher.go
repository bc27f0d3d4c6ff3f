package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the config file for changes via fsnotify and
// reloads the in-memory Config when it does, notifying registered
// callbacks. Reloads are debounced to absorb editors that rewrite the
// file in multiple steps.
type ConfigWatcher struct {
	configPath  string
	config      *Config
	loader      *ConfigLoader
	watcher     *fsnotify.Watcher
	callbacks   []ConfigChangeCallback
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reloadDelay time.Duration
	lastReload  time.Time
}

// ConfigChangeCallback is invoked with the old and new config on reload.
// Returning an error aborts the reload; the in-memory config is left
// unchanged.
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// NewConfigWatcher creates a watcher whose loader searches the directory
// containing configPath; Start watches the config file that loader resolves.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		configPath:  configPath,
		loader:      NewConfigLoader(filepath.Dir(configPath), "ZDTUND"),
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
		reloadDelay: 1 * time.Second,
	}, nil
}

// Start loads the initial config and begins watching for changes.
func (cw *ConfigWatcher) Start() error {
	config, err := cw.loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	configFile := cw.loader.GetConfigPath()
	if configFile == "" {
		return fmt.Errorf("config file path is empty")
	}

	if err := cw.watcher.Add(configFile); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", configFile, err)
	}

	go cw.watchLoop()
	return nil
}

// Stop tears down the watcher goroutine and underlying fsnotify watcher.
func (cw *ConfigWatcher) Stop() error {
	cw.cancel()
	return cw.watcher.Close()
}

// GetConfig returns the current config snapshot.
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// AddCallback registers a callback invoked on every successful reload.
func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			fmt.Printf("config watcher error: %v\n", err)
		}
	}
}

func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
		now := time.Now()
		if now.Sub(cw.lastReload) < cw.reloadDelay {
			return
		}
		cw.lastReload = now

		time.AfterFunc(cw.reloadDelay, func() {
			if err := cw.reloadConfig(); err != nil {
				fmt.Printf("failed to reload config: %v\n", err)
			}
		})
	}
}

func (cw *ConfigWatcher) reloadConfig() error {
	newConfig, err := cw.loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.RLock()
	oldConfig := cw.config
	cw.mu.RUnlock()

	for _, callback := range cw.callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	cw.mu.Lock()
	cw.config = newConfig
	cw.mu.Unlock()

	return nil
}

// WatchConfig is a convenience constructor that creates, registers a
// callback on, and starts a watcher in one call.
func WatchConfig(configPath string, callback ConfigChangeCallback) (*ConfigWatcher, error) {
	watcher, err := NewConfigWatcher(configPath)
	if err != nil {
		return nil, err
	}
	if callback != nil {
		watcher.AddCallback(callback)
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
}

// ValidateConfigChange rejects reloads that touch settings the running
// engine cannot safely pick up without a restart.
func ValidateConfigChange(oldConfig, newConfig *Config) error {
	if oldConfig.Engine.FixedISN != newConfig.Engine.FixedISN {
		return fmt.Errorf("engine.fixed_isn cannot change while sequences from prior connections are still live")
	}
	if newConfig.Engine.SocketCeiling <= 0 {
		return fmt.Errorf("invalid engine.socket_ceiling: %d", newConfig.Engine.SocketCeiling)
	}
	return nil
}
