package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/engine/enginetest"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newTestSession(t *testing.T, fake *enginetest.Fake, cfg config.EngineConfig) *Session {
	t.Helper()
	s := NewSession(SessionConfig{
		Engine:           cfg,
		AnalysisTimeout:  2 * time.Second,
		HandshakeTimeout: time.Second,
		Logger:           zerolog.Nop(),
	}, fake)
	t.Cleanup(s.Quit)
	return s
}

func TestInitializeSendsOptionsInOrder(t *testing.T) {
	fake := enginetest.New()
	s := newTestSession(t, fake, config.EngineConfig{Depth: 12, Threads: 2, Hash: 64, MultiPV: 3})

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state = %s, want ready", s.State())
	}

	want := []string{
		"uci",
		"setoption name Threads value 2",
		"setoption name Hash value 64",
		"setoption name MultiPV value 3",
		"isready",
	}
	got := fake.Sent()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cmd %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInitializeTwice(t *testing.T) {
	s := newTestSession(t, enginetest.New(), config.Default())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize err = %v", err)
	}
}

func TestInitializeStartError(t *testing.T) {
	fake := enginetest.New()
	fake.StartErr = errors.New("exec: not found")
	s := newTestSession(t, fake, config.Default())

	err := s.Initialize(context.Background())
	if err == nil || !strings.Contains(err.Error(), "exec: not found") {
		t.Fatalf("Initialize err = %v", err)
	}
	if _, err := s.Analyze(context.Background(), startFEN); !errors.Is(err, ErrNotReady) {
		t.Errorf("Analyze after failed start err = %v", err)
	}
}

func TestInitializeHandshakeTimeout(t *testing.T) {
	fake := enginetest.New()
	fake.NoHandshake = true
	s := NewSession(SessionConfig{HandshakeTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()}, fake)
	defer s.Quit()

	if err := s.Initialize(context.Background()); !errors.Is(err, ErrHandshake) {
		t.Fatalf("Initialize err = %v, want ErrHandshake", err)
	}
	if s.State() != StateQuit {
		t.Errorf("state = %s, want quit", s.State())
	}
}

func TestAnalyzeBeforeInitialize(t *testing.T) {
	s := newTestSession(t, enginetest.New(), config.Default())
	if _, err := s.Analyze(context.Background(), startFEN); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestAnalyzeAccumulatesUntilBestMove(t *testing.T) {
	fake := enginetest.New()
	fake.Responses[startFEN] = []string{
		"info string NNUE enabled",
		"info depth 1 seldepth 1 multipv 1 score cp 18 nodes 20 nps 20000 time 1 pv e2e4",
		"info depth 2 seldepth 2 multipv 1 score cp 34 nodes 60 nps 30000 time 2 pv d2d4 d7d5",
		"bestmove d2d4 ponder d7d5",
	}
	s := newTestSession(t, fake, config.EngineConfig{Depth: 2})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := s.Analyze(context.Background(), startFEN)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.BestMove != "d2d4" || res.Ponder != "d7d5" {
		t.Errorf("bestmove = %q ponder %q", res.BestMove, res.Ponder)
	}
	if res.Evaluation != 34 || res.Depth != 2 || res.Nodes != 60 || res.NPS != 30000 || res.TimeMS != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.PV) != 2 || res.PV[0] != "d2d4" {
		t.Errorf("pv = %v", res.PV)
	}
	if s.pendingRequests() != 0 {
		t.Errorf("request still registered")
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}

	sent := fake.Sent()
	if sent[len(sent)-2] != "position fen "+startFEN || sent[len(sent)-1] != "go depth 2" {
		t.Errorf("commands = %v", sent)
	}
}

func TestFailedGoSendKeepsAttribution(t *testing.T) {
	fake := enginetest.New()
	fake.Responses[startFEN] = []string{"info depth 8 score cp 41 pv d2d4", "bestmove d2d4"}
	s := newTestSession(t, fake, config.EngineConfig{Depth: 8})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	fake.FailOn("go ")
	if _, err := s.Analyze(context.Background(), startFEN); err == nil {
		t.Fatal("Analyze succeeded with a failing go command")
	}
	if s.pendingRequests() != 0 || s.State() != StateReady {
		t.Fatalf("after failed send: pending %d, state %s", s.pendingRequests(), s.State())
	}

	fake.FailOn("")
	res, err := s.Analyze(context.Background(), startFEN)
	if err != nil {
		t.Fatalf("Analyze after failed send: %v", err)
	}
	if res.BestMove != "d2d4" || res.Evaluation != 41 {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyzeUsesMoveTime(t *testing.T) {
	fake := enginetest.New()
	s := newTestSession(t, fake, config.EngineConfig{Depth: 20, MoveTime: 500})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Analyze(context.Background(), startFEN); err != nil {
		t.Fatal(err)
	}
	if fake.Count("go movetime 500") != 1 || fake.Count("go depth") != 0 {
		t.Errorf("commands = %v", fake.Sent())
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	fake := enginetest.New()
	fake.Default = nil // never answers
	s := NewSession(SessionConfig{
		AnalysisTimeout: 50 * time.Millisecond,
		Logger:          zerolog.Nop(),
	}, fake)
	defer s.Quit()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := s.Analyze(context.Background(), startFEN)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Errorf("timed out too early")
	}
	if s.pendingRequests() != 0 {
		t.Errorf("timed out request still registered")
	}
	if fake.Count("stop") != 0 {
		t.Errorf("timeout must not abort the search")
	}
}

func TestDefaultAnalysisTimeoutIs30s(t *testing.T) {
	s := NewSession(SessionConfig{}, enginetest.New())
	if s.cfg.AnalysisTimeout != 30*time.Second {
		t.Errorf("default timeout = %s", s.cfg.AnalysisTimeout)
	}
}

func TestLateOutputNotMisattributed(t *testing.T) {
	const slowFEN = "8/8/8/8/8/8/k7/K7 w - - 0 1"
	fake := enginetest.New()
	fake.Responses[slowFEN] = []string{"info depth 30 score cp -999 pv a1b1", "bestmove a1b1"}
	fake.Responses[startFEN] = []string{"info depth 5 score cp 25 pv e2e4", "bestmove e2e4"}

	s := NewSession(SessionConfig{AnalysisTimeout: 50 * time.Millisecond, Logger: zerolog.Nop()}, fake)
	defer s.Quit()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := fake.Gate(slowFEN)
	if _, err := s.Analyze(context.Background(), slowFEN); !errors.Is(err, ErrTimeout) {
		t.Fatalf("slow analyze err = %v", err)
	}

	done := make(chan AnalysisResult, 1)
	go func() {
		res, err := s.Analyze(context.Background(), startFEN)
		if err != nil {
			t.Errorf("second analyze: %v", err)
		}
		done <- res
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	select {
	case res := <-done:
		if res.BestMove != "e2e4" || res.Evaluation != 25 {
			t.Errorf("second result picked up stale output: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("second analyze did not finish")
	}
}

func TestAnalyzeContextCancelStops(t *testing.T) {
	fake := enginetest.New()
	fake.Default = nil
	s := newTestSession(t, fake, config.Default())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := s.Analyze(ctx, startFEN); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if fake.Count("stop") != 1 {
		t.Errorf("cancel should send stop, sent %v", fake.Sent())
	}
	if s.pendingRequests() != 0 {
		t.Errorf("cancelled request still registered")
	}
}

func TestSubscribeReceivesLinesInOrder(t *testing.T) {
	fake := enginetest.New()
	fake.Responses[startFEN] = []string{"info depth 1 score cp 1", "info depth 2 score cp 2", "bestmove e2e4"}
	s := newTestSession(t, fake, config.Default())

	got := make(chan string, 16)
	unsubscribe := s.Subscribe(func(line string) { got <- line })
	other := make(chan string, 16)
	s.Subscribe(func(line string) { other <- line })

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Analyze(context.Background(), startFEN); err != nil {
		t.Fatal(err)
	}

	want := []string{"id name Fake 1.0", "uciok", "readyok", "info depth 1 score cp 1", "info depth 2 score cp 2", "bestmove e2e4"}
	for _, w := range want {
		select {
		case line := <-got:
			if line != w {
				t.Errorf("line = %q, want %q", line, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing line %q", w)
		}
	}

	unsubscribe()
	fake.Emit("info depth 99")
	fake.Emit("bestmove a2a3")

	// The second subscriber still sees lines emitted after the first left.
	deadline := time.After(time.Second)
	for {
		select {
		case line := <-other:
			if line == "bestmove a2a3" {
				select {
				case extra := <-got:
					t.Errorf("unsubscribed handler got %q", extra)
				default:
				}
				return
			}
		case <-deadline:
			t.Fatal("second subscriber missed lines")
		}
	}
}

func TestStopOnlyWhenReady(t *testing.T) {
	fake := enginetest.New()
	s := newTestSession(t, fake, config.Default())
	s.Stop()
	if fake.Count("stop") != 0 {
		t.Fatalf("stop sent before ready")
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if fake.Count("stop") != 1 {
		t.Errorf("stop not sent when ready")
	}
}

func TestStartInfiniteAndStop(t *testing.T) {
	fake := enginetest.New()
	fake.Responses[startFEN] = []string{"info depth 7 score cp 12 pv e2e4", "bestmove e2e4"}
	s := newTestSession(t, fake, config.Default())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	best := make(chan string, 1)
	s.Subscribe(func(line string) {
		if IsBestMove(line) {
			best <- line
		}
	})
	if err := s.StartInfinite(startFEN); err != nil {
		t.Fatal(err)
	}
	if fake.Count("go infinite") != 1 {
		t.Fatalf("sent %v", fake.Sent())
	}
	s.Stop()
	select {
	case line := <-best:
		if line != "bestmove e2e4" {
			t.Errorf("bestmove line = %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("no bestmove after stop")
	}

	// The infinite search is accounted for; a following Analyze gets its own result.
	res, err := s.Analyze(context.Background(), startFEN)
	if err != nil || res.BestMove != "e2e4" {
		t.Errorf("Analyze after infinite = %+v, %v", res, err)
	}
}

func TestQuitIdempotentAndFailsPending(t *testing.T) {
	fake := enginetest.New()
	fake.Default = nil
	s := newTestSession(t, fake, config.Default())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := s.Analyze(context.Background(), startFEN)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)

	s.Quit()
	s.Quit()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending analyze err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending analyze not released by Quit")
	}
	if fake.Count("quit") != 1 {
		t.Errorf("quit sent %d times", fake.Count("quit"))
	}
	if s.State() != StateQuit {
		t.Errorf("state = %s", s.State())
	}
	if _, err := s.Analyze(context.Background(), startFEN); !errors.Is(err, ErrNotReady) {
		t.Errorf("Analyze after quit err = %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Quit")
	}
}

func TestEngineExitFailsPending(t *testing.T) {
	fake := enginetest.New()
	fake.Default = nil
	s := newTestSession(t, fake, config.Default())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = fake.Close()
	}()
	if _, err := s.Analyze(context.Background(), startFEN); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
