package eval

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/rules"
)

// Recorder stores completed analyses.
type Recorder interface {
	RecordAnalysis(fen string, res engine.AnalysisResult) error
}

// AnalysisConfig configures single-position analysis.
type AnalysisConfig struct {
	Analyzer Analyzer
	Recorder Recorder // optional
	Logger   zerolog.Logger
}

// AnalysisState is the state of the position analysis panel.
type AnalysisState struct {
	FEN         string                 `json:"fen,omitempty"`
	IsAnalyzing bool                   `json:"is_analyzing"`
	Result      *engine.AnalysisResult `json:"result,omitempty"`
	Score       *Score                 `json:"score,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Analysis runs one position analysis at a time; a new request replaces the
// previous one.
type Analysis struct {
	cfg AnalysisConfig
	log zerolog.Logger

	mu    sync.Mutex
	gen   uint64
	state AnalysisState
}

// NewAnalysis creates an analysis controller.
func NewAnalysis(cfg AnalysisConfig) *Analysis {
	return &Analysis{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "analysis").Logger(),
	}
}

// Analyze searches fen and records the outcome in State.
func (a *Analysis) Analyze(ctx context.Context, fen string) (engine.AnalysisResult, error) {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.state = AnalysisState{FEN: fen, IsAnalyzing: true}
	a.mu.Unlock()

	res, err := a.cfg.Analyzer.Analyze(ctx, fen)

	a.mu.Lock()
	current := gen == a.gen
	if current {
		a.state.IsAnalyzing = false
		if err != nil {
			a.state.Error = err.Error()
		} else {
			r := res.Clone()
			s := ToPlayerPerspective(Score{Evaluation: res.Evaluation, Mate: res.Mate}, rules.TurnOf(fen) == rules.White)
			a.state.Result = &r
			a.state.Score = &s
		}
	}
	a.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.log.Warn().Err(err).Str("fen", fen).Msg("analysis failed")
		}
		return engine.AnalysisResult{}, err
	}
	if a.cfg.Recorder != nil {
		if rerr := a.cfg.Recorder.RecordAnalysis(fen, res); rerr != nil {
			a.log.Warn().Err(rerr).Msg("failed to record analysis")
		}
	}
	return res, nil
}

// Begin starts Analyze in the background.
func (a *Analysis) Begin(ctx context.Context, fen string) {
	a.mu.Lock()
	a.state = AnalysisState{FEN: fen, IsAnalyzing: true}
	a.mu.Unlock()
	go func() {
		_, _ = a.Analyze(ctx, fen)
	}()
}

// Stop asks the analyzer to stop. The pending search still reports the
// partial result it ends with.
func (a *Analysis) Stop() {
	a.cfg.Analyzer.Stop()
}

// Clear forgets the current analysis; a pending result is dropped.
func (a *Analysis) Clear() {
	a.mu.Lock()
	a.gen++
	a.state = AnalysisState{}
	a.mu.Unlock()
}

// State returns a copy of the current state.
func (a *Analysis) State() AnalysisState {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.state
	if s.Result != nil {
		r := s.Result.Clone()
		s.Result = &r
	}
	return s
}
