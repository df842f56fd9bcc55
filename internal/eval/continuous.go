package eval

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/rules"
)

// Update is a live view of an unbounded search.
type Update struct {
	FEN    string                `json:"fen"`
	Result engine.AnalysisResult `json:"result"`
	Score  Score                 `json:"score"`
	Final  bool                  `json:"final"`
}

// FlagStore persists the continuous-analysis switch.
type FlagStore interface {
	LoadContinuous() (bool, error)
	SaveContinuous(enabled bool) error
}

// ContinuousConfig configures continuous analysis.
type ContinuousConfig struct {
	Session *engine.Session
	Flags   FlagStore // optional
	Logger  zerolog.Logger
}

// Continuous runs "go infinite" searches on a dedicated session and
// publishes every info line as an Update.
type Continuous struct {
	cfg   ContinuousConfig
	log   zerolog.Logger
	unsub func()

	mu        sync.Mutex
	enabled   bool
	searches  int // go infinite commands sent
	finished  int // bestmove lines seen
	last      Update
	listeners map[int]func(Update)
	nextID    int
}

// NewContinuous subscribes to the session and restores the enabled flag.
func NewContinuous(cfg ContinuousConfig) *Continuous {
	c := &Continuous{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "continuous").Logger(),
		listeners: make(map[int]func(Update)),
	}
	if cfg.Flags != nil {
		enabled, err := cfg.Flags.LoadContinuous()
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to load continuous flag")
		}
		c.enabled = enabled
	}
	c.unsub = cfg.Session.Subscribe(c.handleLine)
	return c
}

// Enabled reports whether continuous analysis is switched on.
func (c *Continuous) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled switches continuous analysis and persists the flag. Disabling
// stops a running search.
func (c *Continuous) SetEnabled(enabled bool) error {
	c.mu.Lock()
	c.enabled = enabled
	running := c.searches > c.finished
	c.mu.Unlock()

	if !enabled && running {
		c.cfg.Session.Stop()
	}
	if c.cfg.Flags != nil {
		return c.cfg.Flags.SaveContinuous(enabled)
	}
	return nil
}

// Start stops any running search and starts an unbounded one on fen.
func (c *Continuous) Start(fen string) error {
	c.mu.Lock()
	running := c.searches > c.finished
	c.mu.Unlock()
	if running {
		c.cfg.Session.Stop()
	}

	c.mu.Lock()
	c.searches++
	c.last = Update{FEN: fen, Result: engine.AnalysisResult{PV: []string{}}}
	c.mu.Unlock()

	if err := c.cfg.Session.StartInfinite(fen); err != nil {
		c.mu.Lock()
		c.searches--
		c.mu.Unlock()
		return err
	}
	c.log.Debug().Str("fen", fen).Msg("continuous analysis started")
	return nil
}

// Stop ends the running search; its bestmove produces the final update.
func (c *Continuous) Stop() {
	c.cfg.Session.Stop()
}

// Running reports whether a search is in progress.
func (c *Continuous) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searches > c.finished
}

// Last returns the most recent update.
func (c *Continuous) Last() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.last
	u.Result = u.Result.Clone()
	return u
}

// OnUpdate registers fn for every update and returns a function removing it.
func (c *Continuous) OnUpdate(fn func(Update)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Continuous) handleLine(line string) {
	c.mu.Lock()
	if c.searches == 0 || c.finished >= c.searches {
		c.mu.Unlock()
		return
	}
	current := c.finished+1 == c.searches

	if engine.IsBestMove(line) {
		c.finished++
		if !current {
			c.mu.Unlock()
			return
		}
		if move, ponder, ok := engine.ParseBestMove(line); ok {
			c.last.Result.BestMove = move
			c.last.Result.Ponder = ponder
		}
		c.last.Final = true
	} else {
		info := engine.ParseLine(line)
		if !current || info.IsEmpty() {
			c.mu.Unlock()
			return
		}
		c.last.Result.Apply(info)
	}
	c.last.Score = ToPlayerPerspective(Score{Evaluation: c.last.Result.Evaluation, Mate: c.last.Result.Mate}, rules.TurnOf(c.last.FEN) == rules.White)

	u := c.last
	u.Result = u.Result.Clone()
	fns := make([]func(Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Close detaches from the session.
func (c *Continuous) Close() {
	c.unsub()
}
