package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/config"
)

const (
	DefaultAnalysisTimeout  = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateAnalyzing
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateAnalyzing:
		return "analyzing"
	case StateQuit:
		return "quit"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Engine           config.EngineConfig
	AnalysisTimeout  time.Duration // per Analyze call (default 30s)
	HandshakeTimeout time.Duration // for uciok and readyok (default 10s)
	Logger           zerolog.Logger
}

// request is one pending Analyze call. search is the 1-based index of the go
// command it issued; only lines emitted between bestmove search-1 and
// bestmove search belong to it.
type request struct {
	search uint64
	result AnalysisResult
	err    error
	done   chan struct{}
}

type subscriber struct {
	id uint64
	fn func(line string)
}

type waiter struct {
	token string
	ch    chan struct{}
}

// Session owns one engine process and its line channel. Lines are read by a
// single goroutine and delivered to subscribers in emission order.
//
// Analyze calls are serialized: one search runs at a time. Searches are
// counted as go commands are sent and bestmove lines arrive, so a request that
// timed out or was cancelled never leaks its late output into the next one.
type Session struct {
	cfg SessionConfig
	t   Transport
	log zerolog.Logger

	mu           sync.Mutex
	state        State
	subs         []subscriber
	nextSubID    uint64
	requests     []*request
	waiters      []waiter
	searchesSent uint64
	searchesDone uint64

	sendMu    sync.Mutex
	slot      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once
}

// NewSession creates an uninitialized session over t.
func NewSession(cfg SessionConfig, t Transport) *Session {
	if cfg.Engine.Depth == 0 {
		cfg.Engine.Depth = config.DefaultDepth
	}
	if cfg.AnalysisTimeout == 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{
		cfg:    cfg,
		t:      t,
		log:    cfg.Logger,
		slot:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Config returns the engine configuration the session was created with.
func (s *Session) Config() config.EngineConfig {
	return s.cfg.Engine
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize starts the engine, performs the uci handshake, applies the
// configured options and waits for readyok. It may be called once.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.state = StateInitializing
	s.mu.Unlock()

	if err := s.t.Start(); err != nil {
		s.setState(StateQuit)
		s.markClosed()
		return fmt.Errorf("start engine: %w", err)
	}
	go s.readLoop()

	if err := s.roundTrip(ctx, "uci", "uciok"); err != nil {
		s.Quit()
		return err
	}

	e := s.cfg.Engine
	if e.Threads > 0 {
		s.sendLogged(fmt.Sprintf("setoption name Threads value %d", e.Threads))
	}
	if e.Hash > 0 {
		s.sendLogged(fmt.Sprintf("setoption name Hash value %d", e.Hash))
	}
	if e.MultiPV > 0 {
		s.sendLogged(fmt.Sprintf("setoption name MultiPV value %d", e.MultiPV))
	}

	if err := s.roundTrip(ctx, "isready", "readyok"); err != nil {
		s.Quit()
		return err
	}

	s.mu.Lock()
	if s.state == StateInitializing {
		s.state = StateReady
	}
	s.mu.Unlock()

	s.log.Info().
		Int("threads", e.Threads).
		Int("hash_mb", e.Hash).
		Int("multipv", e.MultiPV).
		Msg("engine ready")
	return nil
}

// roundTrip sends cmd and waits for a line equal to token.
func (s *Session) roundTrip(ctx context.Context, cmd, token string) error {
	ch := s.expect(token)
	if err := s.send(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	timer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no %s after %s", ErrHandshake, token, s.cfg.HandshakeTimeout)
	case <-s.closed:
		return fmt.Errorf("%w: engine exited waiting for %s", ErrHandshake, token)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) expect(token string) <-chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.waiters = append(s.waiters, waiter{token: token, ch: ch})
	s.mu.Unlock()
	return ch
}

// Analyze searches fen with the configured depth or move time and returns the
// accumulated result once the search's bestmove line arrives. It fails with
// ErrNotReady before the handshake, ErrTimeout after the analysis timeout and
// ErrClosed if the session quits meanwhile. A timed-out search is not aborted.
func (s *Session) Analyze(ctx context.Context, fen string) (AnalysisResult, error) {
	if st := s.State(); st != StateReady && st != StateAnalyzing {
		return AnalysisResult{}, ErrNotReady
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return AnalysisResult{}, ctx.Err()
	case <-s.closed:
		return AnalysisResult{}, ErrClosed
	}
	defer func() { <-s.slot }()

	req := &request{
		result: AnalysisResult{PV: []string{}},
		done:   make(chan struct{}),
	}
	if err := s.dispatch(req, fen, s.goCommand()); err != nil {
		return AnalysisResult{}, err
	}

	timer := time.NewTimer(s.cfg.AnalysisTimeout)
	defer timer.Stop()

	select {
	case <-req.done:
		if req.err != nil {
			return AnalysisResult{}, req.err
		}
		return req.result, nil
	case <-timer.C:
		s.removeRequest(req)
		s.log.Warn().Str("fen", fen).Dur("timeout", s.cfg.AnalysisTimeout).Msg("analysis timeout")
		return AnalysisResult{}, fmt.Errorf("%w after %s", ErrTimeout, s.cfg.AnalysisTimeout)
	case <-ctx.Done():
		s.removeRequest(req)
		s.Stop()
		return AnalysisResult{}, ctx.Err()
	}
}

// StartInfinite starts an unbounded search of fen. Output is only observable
// through Subscribe; Stop ends the search with a bestmove line.
func (s *Session) StartInfinite(fen string) error {
	if st := s.State(); st != StateReady && st != StateAnalyzing {
		return ErrNotReady
	}
	return s.dispatch(nil, fen, "go infinite")
}

func (s *Session) goCommand() string {
	if s.cfg.Engine.MoveTime > 0 {
		return fmt.Sprintf("go movetime %d", s.cfg.Engine.MoveTime)
	}
	return fmt.Sprintf("go depth %d", s.cfg.Engine.Depth)
}

// dispatch registers req (if any) for the next search index and sends the
// position and go commands.
func (s *Session) dispatch(req *request, fen, goCmd string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.state == StateQuit {
		s.mu.Unlock()
		return ErrClosed
	}
	s.searchesSent++
	if req != nil {
		req.search = s.searchesSent
		s.requests = append(s.requests, req)
		s.state = StateAnalyzing
	}
	s.mu.Unlock()

	for _, cmd := range []string{"position fen " + fen, goCmd} {
		if err := s.sendLocked(cmd); err != nil {
			// No search started, so the next bestmove belongs to the next go.
			s.mu.Lock()
			s.searchesSent--
			s.mu.Unlock()
			if req != nil {
				s.removeRequest(req)
			}
			return fmt.Errorf("send %q: %w", cmd, err)
		}
	}
	return nil
}

// Subscribe registers fn for every engine output line. Handlers run on the
// session's reader goroutine and must not block.
func (s *Session) Subscribe(fn func(line string)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Stop asks the engine to end the current search. Pending Analyze calls
// settle when the resulting bestmove line arrives.
func (s *Session) Stop() {
	if st := s.State(); st != StateReady && st != StateAnalyzing {
		return
	}
	s.sendLogged("stop")
}

// Quit shuts the engine down, drops all subscribers and fails pending
// requests with ErrClosed. Safe to call more than once.
func (s *Session) Quit() {
	s.quitOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateQuit
		pending := s.requests
		s.requests = nil
		s.subs = nil
		s.waiters = nil
		s.mu.Unlock()

		if prev != StateUninitialized && prev != StateQuit {
			s.sendLogged("quit")
		}
		if err := s.t.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close engine transport")
		}
		for _, req := range pending {
			req.err = ErrClosed
			close(req.done)
		}
		s.markClosed()
		s.log.Info().Msg("engine session closed")
	})
}

// Done is closed once the session has quit or the engine exited.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) readLoop() {
	for line := range s.t.Lines() {
		s.handleLine(line)
	}

	// Engine output ended: fail whatever is still waiting.
	s.mu.Lock()
	pending := s.requests
	s.requests = nil
	wasQuit := s.state == StateQuit
	s.state = StateQuit
	s.mu.Unlock()

	for _, req := range pending {
		req.err = ErrClosed
		close(req.done)
	}
	if !wasQuit {
		s.log.Warn().Msg("engine output closed")
	}
	s.markClosed()
}

func (s *Session) handleLine(line string) {
	s.log.Trace().Str("line", line).Msg("engine >>")
	trimmed := strings.TrimSpace(line)

	s.mu.Lock()
	for i := 0; i < len(s.waiters); i++ {
		if s.waiters[i].token == trimmed {
			close(s.waiters[i].ch)
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			i--
		}
	}

	switch {
	case strings.HasPrefix(trimmed, "info"):
		current := s.searchesDone + 1
		if current <= s.searchesSent {
			info := ParseLine(trimmed)
			if !info.IsEmpty() {
				for _, req := range s.requests {
					if req.search == current {
						req.result.Apply(info)
					}
				}
			}
		}
	case IsBestMove(trimmed):
		s.searchesDone++
		done := s.searchesDone
		move, ponder, _ := ParseBestMove(trimmed)
		for i, req := range s.requests {
			if req.search == done {
				req.result.BestMove = move
				req.result.Ponder = ponder
				s.requests = append(s.requests[:i:i], s.requests[i+1:]...)
				close(req.done)
				break
			}
		}
		if len(s.requests) == 0 && s.state == StateAnalyzing {
			s.state = StateReady
		}
	}

	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(line)
	}
}

func (s *Session) removeRequest(req *request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.requests {
		if r == req {
			s.requests = append(s.requests[:i:i], s.requests[i+1:]...)
			break
		}
	}
	if len(s.requests) == 0 && s.state == StateAnalyzing {
		s.state = StateReady
	}
}

// pendingRequests reports how many Analyze calls are registered.
func (s *Session) pendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) send(cmd string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sendLocked(cmd)
}

// sendLocked writes cmd; the caller holds sendMu.
func (s *Session) sendLocked(cmd string) error {
	s.log.Debug().Str("cmd", cmd).Msg("engine <<")
	return s.t.Send(cmd)
}

func (s *Session) sendLogged(cmd string) {
	if err := s.send(cmd); err != nil {
		s.log.Warn().Err(err).Str("cmd", cmd).Msg("send failed")
	}
}
