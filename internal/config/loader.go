package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override name.
const EnvPrefix = "OPSCORE_"

// overrides are the settings an operator may change without editing the file.
type overrides struct {
	LogLevel        string  `env:"LOG_LEVEL"`
	LogFormat       string  `env:"LOG_FORMAT"`
	HTTPAddr        string  `env:"HTTP_ADDR"`
	StorePath       string  `env:"STORE_PATH"`
	RecentCapacity  int     `env:"BUS_RECENT_CAPACITY"`
	HandlerTimeout  int     `env:"BUS_HANDLER_TIMEOUT_MS"`
	DispatchWorkers int     `env:"DISPATCH_WORKERS"`
	TracingEndpoint string  `env:"TRACING_ENDPOINT"`
	SampleRatio     float64 `env:"TRACING_SAMPLE_RATIO"`
}

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config) error
	log      *slog.Logger
}

// NewLoader creates a Loader and performs the initial load. An empty path
// yields the defaults plus environment overrides.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path, log: slog.Default().With("component", "config")}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the watched file path.
func (l *Loader) Path() string { return l.path }

// SetLogger replaces the logger used to report failed reloads.
func (l *Loader) SetLogger(log *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = log.With("component", "config")
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads. A
// callback error is returned from Reload.
func (l *Loader) OnChange(fn func(*Config) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch hot-reloads the config on file changes until stop is called. The
// parent directory is watched so editors that replace the file on save are
// still picked up. A reload that fails to parse or validate keeps the old
// config.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, fmt.Errorf("config watcher: no file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger().Warn("config reload failed, keeping previous", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger().Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. The new config must
// validate before it replaces the current one. Every callback runs even if
// an earlier one fails; their errors are joined.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config) error, len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	var errs []error
	for _, fn := range callbacks {
		if err := fn(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("apply config %s: %w", l.path, err)
	}
	l.logger().Info("config reloaded", "path", l.path, "rules", len(cfg.Rules), "schedules", len(cfg.Schedules))
	return cfg, nil
}

func (l *Loader) logger() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	} else {
		cfg.Version = "1"
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Addr = o.HTTPAddr
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.RecentCapacity != 0 {
		cfg.Bus.RecentCapacity = o.RecentCapacity
	}
	if o.HandlerTimeout != 0 {
		cfg.Bus.HandlerTimeoutMs = o.HandlerTimeout
	}
	if o.DispatchWorkers != 0 {
		cfg.Dispatch.Workers = o.DispatchWorkers
	}
	if o.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = o.TracingEndpoint
	}
	if o.SampleRatio != 0 {
		cfg.Tracing.SampleRatio = o.SampleRatio
	}
	return nil
}

// Default returns a config with every default applied and no rules.
func Default() *Config {
	cfg := &Config{Version: "1"}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "opscore"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Bus.RecentCapacity == 0 {
		cfg.Bus.RecentCapacity = 100
	}
	if cfg.Bus.MaxDepth == 0 {
		cfg.Bus.MaxDepth = 16
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = ":memory:"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.QueueDepth == 0 {
		cfg.Dispatch.QueueDepth = 1000
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}
