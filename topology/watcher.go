package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

type fileDoc struct {
	Mode                  string `yaml:"mode"`
	FallbackEnabled       *bool  `yaml:"fallback_enabled"`
	VisionEnabled         *bool  `yaml:"vision_enabled"`
	ExecutiveAgentEnabled *bool  `yaml:"executive_agent_enabled"`
	DataCollectionEnabled *bool  `yaml:"data_collection_enabled"`
}

// LoadFile reads a YAML topology file. Keys missing from the file take the
// default policy values.
func LoadFile(path string) (Policy, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Policy{}, fmt.Errorf("failed to load topology file %q: %w", path, err)
	}
	var doc fileDoc
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Policy{}, fmt.Errorf("failed to parse topology file %q: %w", path, err)
	}

	p := DefaultPolicy()
	u := Update{
		FallbackEnabled:       doc.FallbackEnabled,
		VisionEnabled:         doc.VisionEnabled,
		ExecutiveAgentEnabled: doc.ExecutiveAgentEnabled,
		DataCollectionEnabled: doc.DataCollectionEnabled,
	}
	if doc.Mode != "" {
		m := Mode(doc.Mode)
		u.Mode = &m
	}
	p, err := u.apply(p)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid topology file %q: %w", path, err)
	}
	return p, nil
}

// ReloadCallback receives each successfully parsed policy. An error is
// logged and the watcher keeps running.
type ReloadCallback func(p Policy) error

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	FilePath string
	// Debounce coalesces bursts of editor writes. Default 500ms.
	Debounce time.Duration
}

// Watcher reloads a topology file whenever it changes on disk.
type Watcher struct {
	config   WatcherConfig
	callback ReloadCallback
	logger   *slog.Logger

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher validates the config and returns an idle watcher.
func NewWatcher(config WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		config:   config,
		callback: callback,
		logger:   logging.WithComponent("topology.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start loads the file once, hands it to the callback and then watches for
// changes in the background. It returns once the file watch is in place.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := LoadFile(w.config.FilePath)
	if err != nil {
		return err
	}
	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial topology callback failed: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
}

func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create file watcher", "error", err)
		return
	}
	defer fw.Close()

	if err := fw.Add(w.config.FilePath); err != nil {
		w.logger.Error("failed to watch file", "path", w.config.FilePath, "error", err)
		return
	}
	w.logger.Info("watching topology file", "path", w.config.FilePath, "debounce", w.config.Debounce)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic saves replace the inode; the watch must be re-added.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := fw.Add(w.config.FilePath); err != nil {
					w.logger.Warn("failed to re-add watch", "op", event.Op.String(), "error", err)
				}
			}
			w.scheduleReload()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, w.reload)
}

func (w *Watcher) reload() {
	p, err := LoadFile(w.config.FilePath)
	if err != nil {
		w.logger.Warn("keeping previous topology", "error", err)
		return
	}
	if err := w.callback(p); err != nil {
		w.logger.Warn("topology reload callback failed", "error", err)
		return
	}
	w.logger.Info("topology file reloaded", "mode", p.Mode)
}

// Stop ends the watch loop and waits up to five seconds for it to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
