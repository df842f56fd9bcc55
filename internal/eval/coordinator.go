package eval

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/rules"
)

// Analyzer runs single-position searches. *engine.Session, *engine.Reference
// and *Pool satisfy it.
type Analyzer interface {
	Analyze(ctx context.Context, fen string) (engine.AnalysisResult, error)
	Stop()
}

// MoveEvaluation is the evaluation of one candidate move from the mover's
// point of view.
type MoveEvaluation struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Evaluation    int    `json:"evaluation"`
	Mate          *int   `json:"mate,omitempty"`
	Depth         int    `json:"depth"`
	IsCalculating bool   `json:"is_calculating"`
}

// MoveKey is the evaluation map key of a move.
func MoveKey(from, to string) string {
	return from + "-" + to
}

// Snapshot is an immutable view of the coordinator state.
type Snapshot struct {
	Generation   uint64                    `json:"generation"`
	FEN          string                    `json:"fen,omitempty"`
	Square       string                    `json:"square,omitempty"`
	Evaluations  map[string]MoveEvaluation `json:"evaluations"`
	IsEvaluating bool                      `json:"is_evaluating"`
	Error        string                    `json:"error,omitempty"`
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Analyzer    Analyzer
	Rules       rules.MoveLister // defaults to rules.Standard
	Logger      zerolog.Logger
	Parallelism int // concurrent analyses per batch (0 = unlimited)
}

// Coordinator evaluates every legal move from a selected square. Each new
// selection bumps the generation; results from earlier generations are
// dropped on arrival.
type Coordinator struct {
	cfg CoordinatorConfig
	log zerolog.Logger

	base       context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	generation  uint64
	evals       map[string]MoveEvaluation // replaced on every write, never mutated
	fen         string
	square      string
	evaluating  bool
	err         error
	cancelBatch context.CancelFunc
	observers   []func(Snapshot)
	closed      bool
}

type batch struct {
	gen         uint64
	ctx         context.Context
	whiteToMove bool
	moves       []rules.MoveInfo
}

// NewCoordinator creates a coordinator over an analyzer.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Rules == nil {
		cfg.Rules = rules.Standard{}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:        cfg,
		log:        cfg.Logger.With().Str("component", "coordinator").Logger(),
		base:       base,
		baseCancel: cancel,
		evals:      map[string]MoveEvaluation{},
	}
}

// EvaluateMovesFromSquare evaluates the legal moves from square in fen and
// returns once every move has settled or the batch has been superseded.
// Per-move failures are recorded as zero evaluations; only an unusable
// position or square is returned as an error.
func (c *Coordinator) EvaluateMovesFromSquare(ctx context.Context, fen, square string) error {
	b, err := c.prepare(ctx, fen, square)
	if err != nil || b == nil {
		return err
	}
	c.run(b)
	return nil
}

// Begin is EvaluateMovesFromSquare without waiting for the analyses.
func (c *Coordinator) Begin(fen, square string) error {
	b, err := c.prepare(c.base, fen, square)
	if err != nil || b == nil {
		return err
	}
	go c.run(b)
	return nil
}

// prepare supersedes the current batch, lists the candidate moves and seeds
// the map with calculating entries. A nil batch means nothing to analyze.
func (c *Coordinator) prepare(ctx context.Context, fen, square string) (*batch, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, engine.ErrClosed
	}
	c.generation++
	gen := c.generation
	if c.cancelBatch != nil {
		c.cancelBatch()
		c.cancelBatch = nil
	}
	c.mu.Unlock()

	if c.cfg.Analyzer != nil {
		c.cfg.Analyzer.Stop()
	}

	moves, err := c.cfg.Rules.MovesFrom(fen, square)
	if err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.evals = map[string]MoveEvaluation{}
			c.fen, c.square = fen, square
			c.evaluating = false
			c.err = err
		}
		c.mu.Unlock()
		c.notify()
		return nil, err
	}
	moves = uniqueMoves(moves)

	bctx, cancel := context.WithCancel(ctx)
	seeded := make(map[string]MoveEvaluation, len(moves))
	for _, mv := range moves {
		seeded[MoveKey(mv.From, mv.To)] = MoveEvaluation{From: mv.From, To: mv.To, IsCalculating: true}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		cancel()
		return nil, nil
	}
	c.evals = seeded
	c.fen, c.square = fen, square
	c.err = nil
	c.evaluating = len(moves) > 0
	c.cancelBatch = cancel
	c.mu.Unlock()
	c.notify()

	if len(moves) == 0 {
		cancel()
		return nil, nil
	}
	c.log.Debug().Str("fen", fen).Str("square", square).Int("moves", len(moves)).Uint64("generation", gen).Msg("evaluating moves")
	return &batch{gen: gen, ctx: bctx, whiteToMove: rules.TurnOf(fen) == rules.White, moves: moves}, nil
}

// uniqueMoves keeps one move per from-to pair, preferring queen promotions.
func uniqueMoves(moves []rules.MoveInfo) []rules.MoveInfo {
	idx := make(map[string]int, len(moves))
	out := moves[:0:0]
	for _, mv := range moves {
		key := MoveKey(mv.From, mv.To)
		if i, ok := idx[key]; ok {
			if mv.Promotion == "q" {
				out[i] = mv
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, mv)
	}
	return out
}

func (c *Coordinator) run(b *batch) {
	var g errgroup.Group
	if c.cfg.Parallelism > 0 {
		g.SetLimit(c.cfg.Parallelism)
	}
	for _, mv := range b.moves {
		g.Go(func() error {
			if err := b.ctx.Err(); err != nil {
				c.settle(b, mv, engine.AnalysisResult{}, err)
				return nil
			}
			res, err := c.cfg.Analyzer.Analyze(b.ctx, mv.After)
			c.settle(b, mv, res, err)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	if b.gen == c.generation {
		c.evaluating = false
		if c.cancelBatch != nil {
			c.cancelBatch()
			c.cancelBatch = nil
		}
	}
	c.mu.Unlock()
	c.notify()
}

// settle writes one move result if its batch is still current.
func (c *Coordinator) settle(b *batch, mv rules.MoveInfo, res engine.AnalysisResult, err error) {
	ev := MoveEvaluation{From: mv.From, To: mv.To}
	if err != nil {
		c.log.Debug().Err(err).Str("move", mv.UCI).Uint64("generation", b.gen).Msg("move analysis failed")
	} else {
		s := ToPlayerPerspective(Score{Evaluation: res.Evaluation, Mate: res.Mate}, b.whiteToMove)
		ev.Evaluation = s.Evaluation
		ev.Mate = s.Mate
		ev.Depth = res.Depth
	}

	c.mu.Lock()
	if b.gen != c.generation {
		c.mu.Unlock()
		return
	}
	next := make(map[string]MoveEvaluation, len(c.evals))
	for k, v := range c.evals {
		next[k] = v
	}
	next[MoveKey(mv.From, mv.To)] = ev
	c.evals = next
	c.mu.Unlock()
	c.notify()
}

// Clear invalidates the current batch and empties the map.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.generation++
	if c.cancelBatch != nil {
		c.cancelBatch()
		c.cancelBatch = nil
	}
	c.evals = map[string]MoveEvaluation{}
	c.fen, c.square = "", ""
	c.evaluating = false
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// Stop asks the analyzer to stop and clears the evaluating flag. Results that
// still arrive for the current batch are recorded.
func (c *Coordinator) Stop() {
	if c.cfg.Analyzer != nil {
		c.cfg.Analyzer.Stop()
	}
	c.mu.Lock()
	c.evaluating = false
	c.mu.Unlock()
	c.notify()
}

// Evaluations returns the current evaluation map. Callers must not modify it.
func (c *Coordinator) Evaluations() map[string]MoveEvaluation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evals
}

// Evaluation returns the evaluation of from-to, if present.
func (c *Coordinator) Evaluation(from, to string) (MoveEvaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.evals[MoveKey(from, to)]
	return ev, ok
}

// SelectedSquare returns the square of the current batch.
func (c *Coordinator) SelectedSquare() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.square
}

// IsEvaluating reports whether the current batch has unsettled moves.
func (c *Coordinator) IsEvaluating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluating
}

// Error returns the error of the last selection, if it could not be evaluated.
func (c *Coordinator) Error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Generation returns the current generation.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Snapshot returns the full coordinator state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		Generation:   c.generation,
		FEN:          c.fen,
		Square:       c.square,
		Evaluations:  c.evals,
		IsEvaluating: c.evaluating,
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	return s
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs synchronously on the goroutine that made the change.
func (c *Coordinator) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	obs := c.observers
	snap := c.snapshotLocked()
	c.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

// Close invalidates the current batch and rejects new ones.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.cancelBatch != nil {
		c.cancelBatch()
		c.cancelBatch = nil
	}
	c.evaluating = false
	c.mu.Unlock()
	c.baseCancel()
}
