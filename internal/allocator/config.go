package allocator

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	allocerrors "github.com/orizon-lang/parheap/internal/errors"
)

// Config generalizes the tunables spec.md fixes as constants into
// overridable knobs, following the teacher's Config/Option functional
// options pattern (internal/allocator/allocator.go's defaultConfig).
// The hot allocate/free/resize path never reads a file or reloads
// anything; everything here is ambient, set up once at New time.
//
// Only DrainThreshold (Free's drain check) and EnableAutoMemLimit
// (New's call to applyAutoMemLimit) change an Allocator's behavior.
// MemoryLimit is only reported back through Stats; nothing enforces
// it, and IdleReserveTimeout is not read at all. MinChunk and
// DefaultRefillPages are checked by validate(); PageSize is not read
// by validate() or anything else. The hot path still runs on
// chunk.go's fixed PageSize/MinChunk/DefaultRefillSize constants,
// because every already-mapped chunk's layout (header size, rounding,
// the page alignment page.go's releaseBumpTail assumes) is baked in at
// the moment it's carved out of a bump region — changing these
// per-Allocator would require threading cfg through every chunk.go
// helper and would still leave memory mapped by a differently
// configured Allocator unreadable by this one. WithPageSize,
// WithMinChunk, and WithRefillPages do not change that geometry, and
// nothing compares their values against chunk.go's constants.
type Config struct {
	PageSize           uintptr       `toml:"page_size"`
	MinChunk           uintptr       `toml:"min_chunk"`
	DrainThreshold     uintptr       `toml:"drain_threshold"`
	DefaultRefillPages uintptr       `toml:"default_refill_pages"`
	IdleReserveTimeout time.Duration `toml:"idle_reserve_timeout"`
	MemoryLimit        uintptr       `toml:"memory_limit"`
	EnableAutoMemLimit bool          `toml:"enable_auto_mem_limit"`
}

// Option mutates a Config under construction.
type Option func(*Config)

// defaultConfig mirrors the fixed constants from chunk.go exactly, so
// New() with no options behaves exactly like spec.md's fixed-constant
// design.
func defaultConfig() *Config {
	return &Config{
		PageSize:           PageSize,
		MinChunk:           MinChunk,
		DrainThreshold:     DrainThreshold,
		DefaultRefillPages: DefaultRefillPages,
		IdleReserveTimeout: 2 * time.Second,
		MemoryLimit:        defaultMemoryLimit(),
		EnableAutoMemLimit: false,
	}
}

// WithPageSize overrides Config.PageSize. Not read by the hot path or
// by validate() — see the Config doc comment.
func WithPageSize(bytes uintptr) Option {
	return func(c *Config) { c.PageSize = bytes }
}

// WithMinChunk overrides Config.MinChunk. Not read by the hot path —
// see the Config doc comment; this only changes what validate() checks
// DrainThreshold against.
func WithMinChunk(bytes uintptr) Option {
	return func(c *Config) { c.MinChunk = bytes }
}

func WithDrainThreshold(bytes uintptr) Option {
	return func(c *Config) { c.DrainThreshold = bytes }
}

// WithRefillPages overrides Config.DefaultRefillPages. Not read by the
// hot path — see the Config doc comment; this only changes what
// validate() checks for a nonzero refill size.
func WithRefillPages(pages uintptr) Option {
	return func(c *Config) { c.DefaultRefillPages = pages }
}

func WithIdleReserveTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleReserveTimeout = d }
}

func WithMemoryLimit(bytes uintptr) Option {
	return func(c *Config) { c.MemoryLimit = bytes }
}

func WithAutoMemLimit(enabled bool) Option {
	return func(c *Config) { c.EnableAutoMemLimit = enabled }
}

// NewConfig builds a validated Config from defaults plus options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MinChunk < HeaderSize || c.MinChunk%RoundTo != 0 {
		return allocerrors.InvalidSize(c.MinChunk, "Config.MinChunk")
	}

	if c.DrainThreshold < c.MinChunk {
		return allocerrors.InvalidSize(c.DrainThreshold, "Config.DrainThreshold")
	}

	if c.DefaultRefillPages == 0 {
		return allocerrors.InvalidSize(c.DefaultRefillPages, "Config.DefaultRefillPages")
	}

	if c.MemoryLimit == 0 {
		return allocerrors.InvalidMemoryLimit(c.MemoryLimit)
	}

	return nil
}

// LoadConfig reads a Config from a TOML file, layering it over the
// defaults so an operator only needs to set the knobs they care about.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, allocerrors.SystemFailure("LoadConfig", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigWatcher reloads a Config file on change and hands the new
// value to onChange. The hot allocation path never consults it
// directly; a host wires onChange into whatever subset of tunables it
// is prepared to apply at runtime (typically MemoryLimit or
// IdleReserveTimeout, not PageSize or MinChunk, which are baked into
// already-mapped memory).
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchConfig starts watching path for writes and invokes onChange with
// each successfully reloaded Config. Errors reloading a changed file are
// swallowed: onChange has no error path, so callers that need reload
// failures surfaced should call LoadConfig themselves on a timer instead.
func WatchConfig(path string, onChange func(*Config)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, allocerrors.SystemFailure("WatchConfig", err)
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()

		return nil, allocerrors.SystemFailure("WatchConfig", err)
	}

	cw := &ConfigWatcher{watcher: w, done: make(chan struct{})}

	go cw.loop(path, onChange)

	return cw, nil
}

func (cw *ConfigWatcher) loop(path string, onChange func(*Config)) {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if _, err := os.Stat(path); err != nil {
				continue
			}

			if cfg, err := LoadConfig(path); err == nil {
				onChange(cfg)
			}
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		case <-cw.done:
			return
		}
	}
}

// Close stops the watcher goroutine.
func (cw *ConfigWatcher) Close() error {
	close(cw.done)

	return cw.watcher.Close()
}
