package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Transport is a line-oriented bidirectional channel to a UCI engine.
type Transport interface {
	// Start launches the engine. Lines() is valid after Start returns nil.
	Start() error
	// Send writes one command line.
	Send(cmd string) error
	// Lines delivers engine output in emission order. It is closed when the
	// engine output ends.
	Lines() <-chan string
	// Close terminates the engine. Safe to call more than once.
	Close() error
}

// ProcessConfig configures an engine subprocess.
type ProcessConfig struct {
	Path   string
	Args   []string
	Nice   int // 1..19 runs the engine under nice(1); 0 = disabled
	Logger zerolog.Logger
}

// ProcessTransport runs a UCI engine as a subprocess and talks to it over
// stdin/stdout.
type ProcessTransport struct {
	cfg   ProcessConfig
	log   zerolog.Logger
	lines chan string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	w      *bufio.Writer
	closed bool
	exited chan struct{}
}

// NewProcessTransport creates a transport for the engine at cfg.Path.
func NewProcessTransport(cfg ProcessConfig) *ProcessTransport {
	return &ProcessTransport{
		cfg:    cfg,
		log:    cfg.Logger,
		lines:  make(chan string, 256),
		exited: make(chan struct{}),
	}
}

// Start launches the engine process.
func (p *ProcessTransport) Start() error {
	if p.cfg.Path == "" {
		return fmt.Errorf("engine path required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("engine process already started")
	}
	if p.closed {
		return ErrClosed
	}

	var cmd *exec.Cmd
	if p.cfg.Nice > 0 {
		nice := p.cfg.Nice
		if nice > 19 {
			p.log.Warn().Int("requested", nice).Int("clamped", 19).Msg("nice value clamped to max 19")
			nice = 19
		}
		args := append([]string{"-n", strconv.Itoa(nice), p.cfg.Path}, p.cfg.Args...)
		cmd = exec.Command("nice", args...)
	} else {
		cmd = exec.Command(p.cfg.Path, p.cfg.Args...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Path, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.w = bufio.NewWriter(stdin)

	go p.readLoop(stdout)

	p.log.Info().Str("path", p.cfg.Path).Int("pid", cmd.Process.Pid).Msg("engine process started")
	return nil
}

func (p *ProcessTransport) readLoop(stdout io.Reader) {
	defer close(p.lines)
	defer close(p.exited)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn().Err(err).Msg("engine output read failed")
	}
	if err := p.cmd.Wait(); err != nil {
		p.log.Debug().Err(err).Msg("engine process exited")
	}
}

// Send writes cmd followed by a newline.
func (p *ProcessTransport) Send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.w == nil {
		return ErrClosed
	}
	if _, err := p.w.WriteString(cmd + "\n"); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("flush %q: %w", cmd, err)
	}
	return nil
}

// Lines returns the engine output channel.
func (p *ProcessTransport) Lines() <-chan string {
	return p.lines
}

// Close closes stdin and kills the process if it has not exited within two
// seconds.
func (p *ProcessTransport) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cmd := p.cmd
	stdin := p.stdin
	p.mu.Unlock()

	if cmd == nil {
		close(p.lines)
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
		p.log.Warn().Msg("engine did not exit, killing")
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill engine: %w", err)
		}
	}
	return nil
}
