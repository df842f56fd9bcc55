package eval

import (
	"context"
	"sync"

	"github.com/freeeve/chesscoach/internal/engine"
)

// Backend is an Analyzer whose target is replaced when the engine
// configuration changes. Searches already running finish on the old target.
type Backend struct {
	mu  sync.RWMutex
	cur Analyzer
}

// NewBackend returns a backend delegating to a (which may be nil).
func NewBackend(a Analyzer) *Backend {
	return &Backend{cur: a}
}

// Swap installs a and returns the previous target.
func (b *Backend) Swap(a Analyzer) Analyzer {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.cur
	b.cur = a
	return old
}

// Current returns the active target.
func (b *Backend) Current() Analyzer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cur
}

// Analyze implements Analyzer.
func (b *Backend) Analyze(ctx context.Context, fen string) (engine.AnalysisResult, error) {
	a := b.Current()
	if a == nil {
		return engine.AnalysisResult{}, engine.ErrNotReady
	}
	return a.Analyze(ctx, fen)
}

// Stop implements Analyzer.
func (b *Backend) Stop() {
	if a := b.Current(); a != nil {
		a.Stop()
	}
}
