package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/engine/enginetest"
	"github.com/freeeve/chesscoach/internal/eval"
	"github.com/freeeve/chesscoach/internal/rules"
	"github.com/freeeve/chesscoach/internal/store"
)

const afterD4FEN = "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1"

// fakeEngines hands every new session its own scripted engine.
type fakeEngines struct {
	mu    sync.Mutex
	fakes []*enginetest.Fake
	gated map[string]bool
	gates []func()
}

func (f *fakeEngines) transport() engine.Transport {
	fake := enginetest.New()
	f.mu.Lock()
	defer f.mu.Unlock()
	for fen := range f.gated {
		f.gates = append(f.gates, fake.Gate(fen))
	}
	f.fakes = append(f.fakes, fake)
	return fake
}

func (f *fakeEngines) all() []*enginetest.Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*enginetest.Fake(nil), f.fakes...)
}

func (f *fakeEngines) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.gates {
		g()
	}
}

func newTestServices(t *testing.T, fe *fakeEngines) (*services, *config.Manager) {
	t.Helper()
	log := zerolog.Nop()
	st, err := store.Open(store.Config{InMemory: true, Logger: log})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfgMgr := config.NewManager(st, log)
	cfgMgr.Load()
	eng := &engines{
		backend:         "session",
		poolSize:        2,
		analysisTimeout: 2 * time.Second,
		log:             log,
		transport:       fe.transport,
	}
	svc := newServices(context.Background(), eng, cfgMgr, st, nil)
	t.Cleanup(svc.close)
	return svc, cfgMgr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMoveSelectionLeavesPositionAnalysisRunning(t *testing.T) {
	fe := &fakeEngines{gated: map[string]bool{afterD4FEN: true}}
	svc, _ := newTestServices(t, fe)
	defer fe.release()

	svc.analysis.Begin(context.Background(), afterD4FEN)
	var analyzing *enginetest.Fake
	waitFor(t, "analysis search", func() bool {
		for _, fake := range fe.all() {
			if fake.Count("go depth") > 0 {
				analyzing = fake
				return true
			}
		}
		return false
	})

	if err := svc.coordinator.EvaluateMovesFromSquare(context.Background(), rules.StartFEN, "e2"); err != nil {
		t.Fatalf("EvaluateMovesFromSquare: %v", err)
	}
	if n := len(svc.coordinator.Evaluations()); n != 2 {
		t.Fatalf("evaluations = %d, want 2", n)
	}

	if n := analyzing.Count("stop"); n != 0 {
		t.Fatalf("position analysis engine got %d stop commands", n)
	}
	if st := svc.analysis.State(); !st.IsAnalyzing || st.Result != nil {
		t.Fatalf("analysis state = %+v, want still analyzing", st)
	}

	fe.release()
	waitFor(t, "analysis result", func() bool { return !svc.analysis.State().IsAnalyzing })
	st := svc.analysis.State()
	if st.Result == nil || st.Result.Depth != 10 || st.Score.Evaluation != -20 {
		t.Errorf("analysis state = %+v", st)
	}
}

func TestParallelMoveEvalStartsPool(t *testing.T) {
	fe := &fakeEngines{}
	svc, cfgMgr := newTestServices(t, fe)

	if _, ok := svc.moves.Current().(*engine.Session); !ok {
		t.Fatalf("serial backend = %T", svc.moves.Current())
	}
	if err := cfgMgr.SetParallelMoveEval(true); err != nil {
		t.Fatalf("SetParallelMoveEval: %v", err)
	}
	p, ok := svc.moves.Current().(*eval.Pool)
	if !ok {
		t.Fatalf("parallel backend = %T", svc.moves.Current())
	}
	if st := p.Status(); st.Workers != 2 {
		t.Errorf("pool status = %+v", st)
	}
	if _, ok := svc.positions.Current().(*engine.Session); !ok {
		t.Errorf("position analysis backend = %T", svc.positions.Current())
	}

	if err := svc.coordinator.EvaluateMovesFromSquare(context.Background(), rules.StartFEN, "g1"); err != nil {
		t.Fatalf("EvaluateMovesFromSquare: %v", err)
	}
	evals := svc.coordinator.Evaluations()
	if len(evals) != 2 {
		t.Fatalf("evaluations = %v", evals)
	}
	for key, ev := range evals {
		if ev.IsCalculating || ev.Evaluation != 20 {
			t.Errorf("%s = %+v", key, ev)
		}
	}
	if st := p.Status(); st.Analyzed != 2 {
		t.Errorf("pool analyzed %d", st.Analyzed)
	}
}
