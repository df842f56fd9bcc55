// Package config holds the engine configuration shared by sessions, the move
// evaluator and the HTTP API, and notifies observers when it changes.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ErrOutOfRange is returned by setters when a value is outside its accepted range.
var ErrOutOfRange = errors.New("config value out of range")

const (
	DefaultDepth = 20
	DefaultHash  = 128

	MinDepth   = 1
	MaxDepth   = 30
	MinHash    = 16
	MaxHash    = 512
	MaxMultiPV = 5
)

// numCPU is swapped in tests.
var numCPU = runtime.NumCPU

// MaxThreads is the largest accepted Threads value: min(NumCPU, 4).
func MaxThreads() int {
	n := numCPU()
	if n < 1 {
		n = 2
	}
	if n > 4 {
		n = 4
	}
	return n
}

// EngineConfig configures a UCI engine session. Zero values of the optional
// fields (MoveTime, Threads, Hash, MultiPV) mean "not set": the matching
// setoption or go parameter is not sent.
type EngineConfig struct {
	Depth            int  `json:"depth"`
	MoveTime         int  `json:"move_time,omitempty"` // ms; takes precedence over Depth
	Threads          int  `json:"threads,omitempty"`
	Hash             int  `json:"hash,omitempty"` // MB
	MultiPV          int  `json:"multipv,omitempty"`
	ParallelMoveEval bool `json:"parallel_move_eval"`
}

// Default returns the default engine configuration.
func Default() EngineConfig {
	return EngineConfig{
		Depth:   DefaultDepth,
		Threads: MaxThreads(),
		Hash:    DefaultHash,
	}
}

// Validate checks every set field against its range.
func (c EngineConfig) Validate() error {
	if c.Depth < MinDepth || c.Depth > MaxDepth {
		return fmt.Errorf("depth %d: %w", c.Depth, ErrOutOfRange)
	}
	if c.MoveTime < 0 {
		return fmt.Errorf("moveTime %d: %w", c.MoveTime, ErrOutOfRange)
	}
	if c.Threads != 0 && (c.Threads < 1 || c.Threads > MaxThreads()) {
		return fmt.Errorf("threads %d: %w", c.Threads, ErrOutOfRange)
	}
	if c.Hash != 0 && (c.Hash < MinHash || c.Hash > MaxHash) {
		return fmt.Errorf("hash %d: %w", c.Hash, ErrOutOfRange)
	}
	if c.MultiPV != 0 && (c.MultiPV < 1 || c.MultiPV > MaxMultiPV) {
		return fmt.Errorf("multiPV %d: %w", c.MultiPV, ErrOutOfRange)
	}
	return nil
}

// Sanitize replaces every invalid field with its default.
func (c EngineConfig) Sanitize() EngineConfig {
	def := Default()
	if c.Depth < MinDepth || c.Depth > MaxDepth {
		c.Depth = def.Depth
	}
	if c.MoveTime < 0 {
		c.MoveTime = 0
	}
	if c.Threads != 0 && (c.Threads < 1 || c.Threads > MaxThreads()) {
		c.Threads = def.Threads
	}
	if c.Hash != 0 && (c.Hash < MinHash || c.Hash > MaxHash) {
		c.Hash = def.Hash
	}
	if c.MultiPV != 0 && (c.MultiPV < 1 || c.MultiPV > MaxMultiPV) {
		c.MultiPV = 0
	}
	return c
}

// RequiresRestart reports whether switching from c to next changes anything a
// running engine session was started with.
func (c EngineConfig) RequiresRestart(next EngineConfig) bool {
	return c.Depth != next.Depth ||
		c.MoveTime != next.MoveTime ||
		c.Threads != next.Threads ||
		c.Hash != next.Hash ||
		c.MultiPV != next.MultiPV
}

// Persister stores the engine configuration between runs.
type Persister interface {
	LoadEngineConfig() (EngineConfig, error)
	SaveEngineConfig(EngineConfig) error
}

// ChangeFunc is called after every successful change with the previous and
// the new configuration.
type ChangeFunc func(old, new EngineConfig)

// Manager owns the live engine configuration.
type Manager struct {
	mu        sync.Mutex
	cfg       EngineConfig
	persister Persister
	observers []ChangeFunc
	log       zerolog.Logger
}

// NewManager creates a manager holding the default configuration.
// persister may be nil.
func NewManager(persister Persister, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:       Default(),
		persister: persister,
		log:       log,
	}
}

// Load replaces the current configuration with the persisted one. Missing or
// invalid entries fall back to defaults; a load error is logged, not returned.
func (m *Manager) Load() EngineConfig {
	if m.persister == nil {
		return m.Get()
	}
	loaded, err := m.persister.LoadEngineConfig()
	if err != nil {
		m.log.Warn().Err(err).Msg("load engine config failed, using defaults")
		return m.Get()
	}
	loaded = loaded.Sanitize()

	m.mu.Lock()
	old := m.cfg
	m.cfg = loaded
	observers := append([]ChangeFunc(nil), m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(old, loaded)
	}
	return loaded
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() EngineConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// OnChange registers an observer. Observers run synchronously after the
// change has been stored.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// SetDepth sets the search depth (1..30).
func (m *Manager) SetDepth(depth int) error {
	return m.update(func(c *EngineConfig) { c.Depth = depth })
}

// SetThreads sets the engine thread count (1..MaxThreads).
func (m *Manager) SetThreads(threads int) error {
	if threads == 0 {
		return fmt.Errorf("threads 0: %w", ErrOutOfRange)
	}
	return m.update(func(c *EngineConfig) { c.Threads = threads })
}

// SetHash sets the hash table size in MB (16..512).
func (m *Manager) SetHash(hash int) error {
	if hash == 0 {
		return fmt.Errorf("hash 0: %w", ErrOutOfRange)
	}
	return m.update(func(c *EngineConfig) { c.Hash = hash })
}

// SetMultiPV sets the number of principal variations; 0 unsets it.
func (m *Manager) SetMultiPV(n int) error {
	return m.update(func(c *EngineConfig) { c.MultiPV = n })
}

// SetMoveTime sets a per-search time limit in ms; 0 searches by depth.
func (m *Manager) SetMoveTime(ms int) error {
	return m.update(func(c *EngineConfig) { c.MoveTime = ms })
}

// SetParallelMoveEval toggles one-session-per-move evaluation.
func (m *Manager) SetParallelMoveEval(enabled bool) error {
	return m.update(func(c *EngineConfig) { c.ParallelMoveEval = enabled })
}

// Apply validates and stores a whole configuration.
func (m *Manager) Apply(next EngineConfig) error {
	return m.update(func(c *EngineConfig) { *c = next })
}

// Reset restores the defaults.
func (m *Manager) Reset() error {
	return m.update(func(c *EngineConfig) { *c = Default() })
}

func (m *Manager) update(mutate func(*EngineConfig)) error {
	m.mu.Lock()
	next := m.cfg
	mutate(&next)
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	old := m.cfg
	m.cfg = next
	observers := append([]ChangeFunc(nil), m.observers...)
	m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.SaveEngineConfig(next); err != nil {
			m.log.Warn().Err(err).Msg("save engine config failed")
		}
	}
	if old != next {
		for _, fn := range observers {
			fn(old, next)
		}
	}
	return nil
}
