// Package game holds the game being played: position, move history and
// status, with PGN import and export.
package game

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/rules"
)

// HistoryEntry is one played move.
type HistoryEntry struct {
	Ply       int         `json:"ply"`
	SAN       string      `json:"san"`
	UCI       string      `json:"uci"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Promotion string      `json:"promotion,omitempty"`
	Color     rules.Color `json:"color"`
	FEN       string      `json:"fen"`
}

// State is a snapshot of the game.
type State struct {
	FEN        string         `json:"fen"`
	Turn       rules.Color    `json:"turn"`
	Status     rules.Status   `json:"status"`
	IsGameOver bool           `json:"is_game_over"`
	Result     string         `json:"result"`
	History    []HistoryEntry `json:"history"`
	Opening    *rules.Opening `json:"opening,omitempty"`
}

// Config configures a Game.
type Config struct {
	Openings *rules.Openings // optional
	Logger   zerolog.Logger
}

// Game is safe for concurrent use.
type Game struct {
	openings *rules.Openings
	log      zerolog.Logger

	mu        sync.Mutex
	board     *rules.Board
	observers []func(State)
}

// New starts a game from the standard position.
func New(cfg Config) *Game {
	b, _ := rules.NewBoard(rules.StartFEN)
	return &Game{
		openings: cfg.Openings,
		log:      cfg.Logger.With().Str("component", "game").Logger(),
		board:    b,
	}
}

// OnChange registers fn to run after every position change.
func (g *Game) OnChange(fn func(State)) {
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
}

// Move plays from-to with an optional promotion piece.
func (g *Game) Move(from, to, promotion string) (rules.MoveInfo, error) {
	g.mu.Lock()
	mv, err := g.board.Move(from, to, promotion)
	g.mu.Unlock()
	if err != nil {
		return rules.MoveInfo{}, err
	}
	g.log.Debug().Str("move", mv.SAN).Msg("move played")
	g.changed()
	return mv, nil
}

// Undo takes back the last move.
func (g *Game) Undo() (rules.MoveInfo, bool) {
	g.mu.Lock()
	mv, ok := g.board.Undo()
	g.mu.Unlock()
	if ok {
		g.changed()
	}
	return mv, ok
}

// Reset returns to the standard start position.
func (g *Game) Reset() {
	g.mu.Lock()
	g.board.Reset()
	g.mu.Unlock()
	g.changed()
}

// LoadFEN sets up a position and clears the history.
func (g *Game) LoadFEN(fen string) error {
	g.mu.Lock()
	err := g.board.Load(fen)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.changed()
	return nil
}

// LoadPGN replaces the game with a PGN record.
func (g *Game) LoadPGN(pgn string) error {
	g.mu.Lock()
	err := g.board.LoadPGN(pgn)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.changed()
	return nil
}

// PGN exports the game.
func (g *Game) PGN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board.PGN()
}

// FEN returns the current position.
func (g *Game) FEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board.FEN()
}

// Dests maps each square with a legal move to its destination squares.
func (g *Game) Dests() map[string][]string {
	g.mu.Lock()
	moves, err := g.board.LegalMoves(rules.Filter{})
	g.mu.Unlock()
	dests := make(map[string][]string)
	if err != nil {
		return dests
	}
	seen := make(map[string]bool, len(moves))
	for _, mv := range moves {
		if seen[mv.From+mv.To] {
			continue
		}
		seen[mv.From+mv.To] = true
		dests[mv.From] = append(dests[mv.From], mv.To)
	}
	return dests
}

// State returns a snapshot of the game.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stateLocked()
}

func (g *Game) stateLocked() State {
	b := g.board
	hist := b.History()
	entries := make([]HistoryEntry, len(hist))
	for i, mv := range hist {
		entries[i] = HistoryEntry{
			Ply:       i + 1,
			SAN:       mv.SAN,
			UCI:       mv.UCI,
			From:      mv.From,
			To:        mv.To,
			Promotion: mv.Promotion,
			Color:     mv.Color,
			FEN:       mv.After,
		}
	}
	return State{
		FEN:        b.FEN(),
		Turn:       b.Turn(),
		Status:     b.Status(),
		IsGameOver: b.IsGameOver(),
		Result:     b.Result(),
		History:    entries,
		Opening:    g.openings.Lookup(b),
	}
}

func (g *Game) changed() {
	g.mu.Lock()
	st := g.stateLocked()
	obs := g.observers
	g.mu.Unlock()
	for _, fn := range obs {
		fn(st)
	}
}
