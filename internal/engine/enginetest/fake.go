// Package enginetest provides a scripted in-memory UCI engine for tests.
package enginetest

import (
	"fmt"
	"strings"
	"sync"
)

// Fake is a Transport that answers the UCI handshake and replies to go
// commands with scripted lines keyed by the last position FEN.
type Fake struct {
	// Responses maps a FEN to the lines emitted after "go" for that position.
	// The last line should be a bestmove line.
	Responses map[string][]string
	// Default is used for positions without an entry. Nil means no reply.
	Default []string
	// StartErr is returned by Start.
	StartErr error
	// NoHandshake suppresses uciok.
	NoHandshake bool

	mu       sync.Mutex
	lines    chan string
	sent     []string
	position string
	infinite bool
	gates    map[string]*gate
	tail     chan struct{}
	running  []*gate
	closed   bool
	started  bool
	failOn   string
}

// New returns a fake answering every search with a single 20 cp line.
func New() *Fake {
	return &Fake{
		Responses: make(map[string][]string),
		Default: []string{
			"info depth 10 seldepth 14 multipv 1 score cp 20 nodes 1000 nps 100000 time 10 pv e2e4 e7e5",
			"bestmove e2e4 ponder e7e5",
		},
		lines: make(chan string, 4096),
		gates: make(map[string]*gate),
	}
}

// Start implements engine.Transport.
func (f *Fake) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.started = true
	return nil
}

// Lines implements engine.Transport.
func (f *Fake) Lines() <-chan string {
	return f.lines
}

// Close implements engine.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.lines)
	}
	return nil
}

type gate struct {
	ch   chan struct{}
	once sync.Once
}

func (g *gate) release() { g.once.Do(func() { close(g.ch) }) }

// Gate holds back the reply to the next search of fen until the returned
// release function is called or a stop command arrives. Replies to later
// searches queue behind it, as they would behind a busy engine.
func (f *Fake) Gate(fen string) (release func()) {
	g := &gate{ch: make(chan struct{})}
	f.mu.Lock()
	f.gates[fen] = g
	f.mu.Unlock()
	return g.release
}

// Emit pushes an arbitrary line as if the engine printed it.
func (f *Fake) Emit(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(line)
}

// Sent returns a copy of every command received.
func (f *Fake) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Count returns how many received commands start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, cmd := range f.Sent() {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

// FailOn makes Send reject commands starting with prefix. An empty prefix
// accepts everything again.
func (f *Fake) FailOn(prefix string) {
	f.mu.Lock()
	f.failOn = prefix
	f.mu.Unlock()
}

// Send implements engine.Transport.
func (f *Fake) Send(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.HasPrefix(cmd, f.failOn) {
		return fmt.Errorf("write %q: broken pipe", cmd)
	}
	f.sent = append(f.sent, cmd)

	switch {
	case cmd == "uci":
		f.emitLocked("id name Fake 1.0")
		if !f.NoHandshake {
			f.emitLocked("uciok")
		}
	case cmd == "isready":
		f.emitLocked("readyok")
	case strings.HasPrefix(cmd, "position fen "):
		f.position = strings.TrimPrefix(cmd, "position fen ")
	case cmd == "go infinite":
		f.infinite = true
		for _, line := range f.replyFor(f.position) {
			if !strings.HasPrefix(line, "bestmove") {
				f.emitLocked(line)
			}
		}
	case strings.HasPrefix(cmd, "go"):
		reply := f.replyFor(f.position)
		g, gated := f.gates[f.position]
		if gated {
			delete(f.gates, f.position)
			f.running = append(f.running, g)
		}
		prev := f.tail
		if !gated && prev == nil {
			for _, line := range reply {
				f.emitLocked(line)
			}
			return nil
		}
		done := make(chan struct{})
		f.tail = done
		go func() {
			if prev != nil {
				<-prev
			}
			if gated {
				<-g.ch
			}
			f.mu.Lock()
			for _, line := range reply {
				f.emitLocked(line)
			}
			if f.tail == done {
				f.tail = nil
			}
			f.mu.Unlock()
			close(done)
		}()
	case cmd == "stop":
		if f.infinite {
			f.infinite = false
			f.emitLocked(f.bestMoveFor(f.position))
		}
		for _, g := range f.running {
			g.release()
		}
		f.running = nil
	}
	return nil
}

func (f *Fake) replyFor(fen string) []string {
	if r, ok := f.Responses[fen]; ok {
		return r
	}
	return f.Default
}

func (f *Fake) bestMoveFor(fen string) string {
	for _, line := range f.replyFor(fen) {
		if strings.HasPrefix(line, "bestmove") {
			return line
		}
	}
	return "bestmove (none)"
}

func (f *Fake) emitLocked(line string) {
	if f.closed {
		return
	}
	f.lines <- line
}
