package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chesscoach/internal/engine"
)

// PoolConfig configures a session pool.
type PoolConfig struct {
	Size       int // number of engine sessions (0 = 1)
	NewSession func() (*engine.Session, error) // may return ready sessions
	Logger     zerolog.Logger
}

// Pool runs one engine session per concurrent analysis, so parallel move
// evaluation never shares a search process.
type Pool struct {
	cfg PoolConfig
	log zerolog.Logger

	idle chan *engine.Session

	mu       sync.Mutex
	sessions []*engine.Session
	started  bool
	closed   bool

	// Stats
	busy     int32
	analyzed int64
	failed   int64
}

// NewPool creates a pool; Start creates and initializes the sessions.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.NewSession == nil {
		return nil, fmt.Errorf("session factory required")
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	return &Pool{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "pool").Logger(),
		idle: make(chan *engine.Session, cfg.Size),
	}, nil
}

// Start creates every session concurrently and initializes the ones the
// factory did not. If any fails, the ones already running are quit.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return engine.ErrAlreadyInitialized
	}
	p.started = true
	p.mu.Unlock()

	sessions := make([]*engine.Session, p.cfg.Size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			s, err := p.cfg.NewSession()
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			sessions[i] = s
			if s.State() == engine.StateReady {
				return nil
			}
			if err := s.Initialize(gctx); err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range sessions {
			if s != nil {
				s.Quit()
			}
		}
		return err
	}

	p.mu.Lock()
	p.sessions = sessions
	p.mu.Unlock()
	for _, s := range sessions {
		p.idle <- s
	}
	p.log.Info().Int("sessions", len(sessions)).Msg("pool started")
	return nil
}

// Analyze runs fen on the next idle session, waiting for one if all are busy.
func (p *Pool) Analyze(ctx context.Context, fen string) (engine.AnalysisResult, error) {
	p.mu.Lock()
	ready := p.started && !p.closed && p.sessions != nil
	p.mu.Unlock()
	if !ready {
		return engine.AnalysisResult{}, engine.ErrNotReady
	}

	var s *engine.Session
	select {
	case s = <-p.idle:
	case <-ctx.Done():
		return engine.AnalysisResult{}, ctx.Err()
	}
	atomic.AddInt32(&p.busy, 1)
	res, err := s.Analyze(ctx, fen)
	atomic.AddInt32(&p.busy, -1)
	p.idle <- s

	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		if !errors.Is(err, context.Canceled) {
			p.log.Warn().Err(err).Str("fen", fen).Msg("pool analysis failed")
		}
		return engine.AnalysisResult{}, err
	}
	atomic.AddInt64(&p.analyzed, 1)
	return res, nil
}

// Stop stops the search on every session.
func (p *Pool) Stop() {
	p.mu.Lock()
	sessions := p.sessions
	p.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// Close quits every session.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := p.sessions
	p.mu.Unlock()
	for _, s := range sessions {
		s.Quit()
	}
}

// PoolStatus is a point-in-time view of the pool.
type PoolStatus struct {
	Workers  int   `json:"workers"`
	Busy     int   `json:"busy"`
	Analyzed int64 `json:"analyzed"`
	Failed   int64 `json:"failed"`
}

// Status returns the current pool statistics.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	workers := len(p.sessions)
	p.mu.Unlock()
	return PoolStatus{
		Workers:  workers,
		Busy:     int(atomic.LoadInt32(&p.busy)),
		Analyzed: atomic.LoadInt64(&p.analyzed),
		Failed:   atomic.LoadInt64(&p.failed),
	}
}
