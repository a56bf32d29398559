package config

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "crmbot/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherClosed is returned by Watch when fsnotify closes its channels.
var ErrWatcherClosed = errors.New("config watcher closed")

// ConfigManager owns the committed config and republishes it to subscribers
// when the file changes on disk.
type ConfigManager struct {
	path      string
	lookup    func(string) (string, bool)
	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
	debounce  time.Duration

	mu     sync.RWMutex
	cfg    *Config
	digest [sha256.Size]byte

	subsMu sync.Mutex
	subs   map[int]chan *Config
	nextID int
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		path:     path,
		debounce: 300 * time.Millisecond,
		subs:     map[int]chan *Config{},
	}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetEnvLookup replaces os.LookupEnv for environment overrides.
func (m *ConfigManager) SetEnvLookup(fn func(string) (string, bool)) { m.lookup = fn }

// SetValidator installs a check a reloaded config must pass before it is committed.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b, m.lookup)
}

// Load parses the file and commits it as the current config.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	d := digest(cfg)
	m.mu.Lock()
	m.cfg, m.digest = cfg, d
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel of committed reloads and a func that closes it.
// Only the newest pending config is kept when the reader falls behind.
func (m *ConfigManager) Subscribe() (<-chan *Config, func()) {
	ch := make(chan *Config, 1)
	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			close(ch)
			m.subsMu.Unlock()
		})
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		// Replace a stale pending value.
		select {
		case <-ch:
		default:
		}
		ch <- cfg
	}
}

// Reload parses the file and, when its content differs from the committed
// config and passes the validator, commits and publishes it. It reports
// whether a new config was published.
func (m *ConfigManager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	d := digest(cfg)
	m.mu.RLock()
	same := d == m.digest
	m.mu.RUnlock()
	if same {
		return false, nil
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return false, fmt.Errorf("rejected: %w", err)
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	return true, nil
}

// Watch reloads on writes to the config file until ctx is done. Editors that
// replace the file are handled by watching the parent directory. A broken
// watcher returns an error so the caller can restart it.
func (m *ConfigManager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watcher: add %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("path", m.path))

	debounce := time.NewTimer(m.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if filepath.Base(ev.Name) == name && ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				debounce.Reset(m.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			m.log.Warn("config watcher error", logx.Err(err))
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				debounce.Reset(m.debounce)
			}
		case <-debounce.C:
			changed, err := m.Reload(ctx)
			switch {
			case err != nil:
				m.log.Warn("config reload failed; keeping current config", logx.String("path", m.path), logx.Err(err))
			case changed:
				m.log.Info("config reloaded", logx.String("path", m.path))
			default:
				m.log.Debug("config file touched without changes", logx.String("path", m.path))
			}
		}
	}
}

// digest fingerprints the decoded config, so whitespace and comment edits do
// not trigger a reload.
func digest(cfg *Config) [sha256.Size]byte {
	b, err := json.Marshal(cfg)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(b)
}
