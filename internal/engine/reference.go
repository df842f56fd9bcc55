package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"
)

// ReferenceConfig configures a Reference analyzer.
type ReferenceConfig struct {
	Path    string
	Depth   int
	Threads int
	HashMB  int
	Nice    int
	Logger  zerolog.Logger
}

// Reference analyzes positions through github.com/freeeve/uci, an independent
// UCI client. It gives the same AnalysisResult shape as Session and is used to
// cross-check Session output.
type Reference struct {
	cfg ReferenceConfig
	log zerolog.Logger

	mu     sync.Mutex
	engine *uci.Engine
}

// NewReference starts the engine and applies the options.
func NewReference(cfg ReferenceConfig) (*Reference, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 20
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 128
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}

	eng, err := uci.NewEngine(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	opts := uci.Options{
		Hash:    cfg.HashMB,
		Threads: cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := eng.SetOptions(opts); err != nil {
		eng.Close()
		return nil, fmt.Errorf("set options: %w", err)
	}

	if cfg.Nice > 0 {
		nice := cfg.Nice
		if nice > 19 {
			nice = 19
		}
		if err := eng.SetNice(nice); err != nil {
			cfg.Logger.Warn().Err(err).Int("nice", nice).Msg("failed to set nice value")
		}
	}

	return &Reference{cfg: cfg, log: cfg.Logger, engine: eng}, nil
}

// Analyze searches fen to the configured depth. The search itself cannot be
// interrupted; ctx is only checked before it starts.
func (r *Reference) Analyze(ctx context.Context, fen string) (AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		return AnalysisResult{}, ErrClosed
	}

	if err := r.engine.SetFEN(fen); err != nil {
		return AnalysisResult{}, fmt.Errorf("set FEN: %w", err)
	}
	results, err := r.engine.GoDepth(r.cfg.Depth, uci.HighestDepthOnly)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("reference eval: %w", err)
	}
	if len(results.Results) == 0 {
		return AnalysisResult{}, fmt.Errorf("no results from engine")
	}

	best := results.Results[0]
	for _, res := range results.Results {
		if res.Depth > best.Depth {
			best = res
		}
	}

	out := AnalysisResult{
		BestMove: results.BestMove,
		Depth:    best.Depth,
		PV:       append([]string{}, best.BestMoves...),
	}
	if best.Mate {
		mate := best.Score
		out.Mate = &mate
		if mate <= 0 {
			out.Evaluation = -MateScore
		} else {
			out.Evaluation = MateScore
		}
	} else {
		out.Evaluation = best.Score
	}

	r.log.Debug().
		Str("fen", fen).
		Int("score", best.Score).
		Bool("mate", best.Mate).
		Int("depth", best.Depth).
		Msg("reference eval")
	return out, nil
}

// Stop is a no-op: GoDepth blocks until the depth is reached.
func (r *Reference) Stop() {}

// Close terminates the engine.
func (r *Reference) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
}
