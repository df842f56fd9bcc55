package eval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/engine"
)

type memRecorder struct {
	mu   sync.Mutex
	fens []string
}

func (r *memRecorder) RecordAnalysis(fen string, _ engine.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fens = append(r.fens, fen)
	return nil
}

func TestAnalysisRecordsResult(t *testing.T) {
	stub := newStub()
	stub.results[afterE4FEN] = engine.AnalysisResult{BestMove: "e7e5", Evaluation: 40, Depth: 18, PV: []string{"e7e5"}}
	rec := &memRecorder{}
	a := NewAnalysis(AnalysisConfig{Analyzer: stub, Recorder: rec, Logger: zerolog.Nop()})

	res, err := a.Analyze(context.Background(), afterE4FEN)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.BestMove != "e7e5" {
		t.Errorf("BestMove = %q", res.BestMove)
	}

	st := a.State()
	if st.IsAnalyzing || st.Error != "" || st.Result == nil || st.Score == nil {
		t.Fatalf("state = %+v", st)
	}
	if st.Result.Evaluation != 40 {
		t.Errorf("raw evaluation = %d, want 40", st.Result.Evaluation)
	}
	if st.Score.Evaluation != -40 {
		t.Errorf("player evaluation = %d, want -40", st.Score.Evaluation)
	}
	if len(rec.fens) != 1 || rec.fens[0] != afterE4FEN {
		t.Errorf("recorded %v", rec.fens)
	}

	st.Result.PV[0] = "changed"
	if a.State().Result.PV[0] != "e7e5" {
		t.Error("State returned shared PV slice")
	}
}

func TestAnalysisErrorIsVisible(t *testing.T) {
	stub := newStub()
	stub.errs[startFEN] = engine.ErrTimeout
	rec := &memRecorder{}
	a := NewAnalysis(AnalysisConfig{Analyzer: stub, Recorder: rec, Logger: zerolog.Nop()})

	if _, err := a.Analyze(context.Background(), startFEN); !errors.Is(err, engine.ErrTimeout) {
		t.Fatalf("Analyze = %v", err)
	}
	st := a.State()
	if st.IsAnalyzing || st.Error == "" || st.Result != nil {
		t.Errorf("state = %+v", st)
	}
	if len(rec.fens) != 0 {
		t.Error("failed analysis was recorded")
	}
}

func TestAnalysisClearDropsPending(t *testing.T) {
	stub := newStub()
	release := stub.gate(startFEN)
	a := NewAnalysis(AnalysisConfig{Analyzer: stub, Logger: zerolog.Nop()})

	a.Begin(context.Background(), startFEN)
	if !a.State().IsAnalyzing {
		t.Fatal("Begin should mark the analysis running")
	}
	waitFor(t, "dispatch", func() bool { return stub.called(startFEN) })

	a.Clear()
	release()
	waitFor(t, "search end", func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.active == 0
	})
	if st := a.State(); st.Result != nil || st.FEN != "" {
		t.Errorf("cleared analysis got %+v", st)
	}

	a.Stop()
	if stub.stops != 1 {
		t.Errorf("Stop forwarded %d times", stub.stops)
	}
}
