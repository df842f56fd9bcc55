// Package rules wraps github.com/freeeve/pgn/v3 behind the operations the
// analysis service needs: FEN loading, legal move listing with resulting
// positions, SAN, PGN round trips and game-status predicates.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrInvalidFEN  = errors.New("invalid FEN")
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidPGN  = errors.New("invalid PGN")
)

// Color is the side to move: "w" or "b".
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

// MoveInfo describes one move: squares, notation and the positions around it.
type MoveInfo struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Color     Color  `json:"color"`
	Before    string `json:"before"`
	After     string `json:"after"`

	mv pgn.Mv
}

// Filter restricts LegalMoves. An empty Square lists every move.
type Filter struct {
	Square string
}

// Board is a position plus the moves played from its starting FEN.
type Board struct {
	pos      *pgn.GameState
	startFEN string
	history  []MoveInfo
	seen     map[string]int
}

// NewBoard loads fen; an empty fen loads the standard start position.
func NewBoard(fen string) (*Board, error) {
	b := &Board{}
	if fen == "" {
		fen = StartFEN
	}
	if err := b.Load(fen); err != nil {
		return nil, err
	}
	return b, nil
}

// Load replaces the position and clears the history. On error the board is
// unchanged.
func (b *Board) Load(fen string) error {
	pos, err := parseFEN(fen)
	if err != nil {
		return err
	}
	b.pos = pos
	b.startFEN = pos.ToFEN()
	b.history = nil
	b.seen = map[string]int{repetitionKey(b.startFEN): 1}
	return nil
}

// Reset loads the standard start position.
func (b *Board) Reset() {
	_ = b.Load(StartFEN)
}

func parseFEN(fen string) (*pgn.GameState, error) {
	fen = strings.TrimSpace(fen)
	if len(strings.Fields(fen)) < 4 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFEN, fen)
	}
	pos, err := pgn.NewGame(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFEN, fen)
	}
	return pos, nil
}

// FEN returns the current position.
func (b *Board) FEN() string {
	return b.pos.ToFEN()
}

// StartingFEN returns the position the history starts from.
func (b *Board) StartingFEN() string {
	return b.startFEN
}

// Turn returns the side to move.
func (b *Board) Turn() Color {
	return TurnOf(b.FEN())
}

// TurnOf reads the side to move from a FEN string.
func TurnOf(fen string) Color {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return Black
	}
	return White
}

// History returns the moves played since the last Load.
func (b *Board) History() []MoveInfo {
	return append([]MoveInfo(nil), b.history...)
}

// LegalMoves lists the legal moves, optionally only those leaving f.Square.
func (b *Board) LegalMoves(f Filter) ([]MoveInfo, error) {
	from := -1
	if f.Square != "" {
		sq, err := ParseSquare(f.Square)
		if err != nil {
			return nil, err
		}
		from = sq
	}

	before := b.FEN()
	moves := pgn.GenerateLegalMoves(b.pos)
	out := make([]MoveInfo, 0, len(moves))
	for _, mv := range moves {
		if from >= 0 && int(mv.From) != from {
			continue
		}
		info, err := b.describe(mv, before)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// describe fills a MoveInfo for mv played from the current position.
func (b *Board) describe(mv pgn.Mv, before string) (MoveInfo, error) {
	child, err := parseFEN(before)
	if err != nil {
		return MoveInfo{}, err
	}
	if err := pgn.ApplyMove(child, mv); err != nil {
		return MoveInfo{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return MoveInfo{
		From:      SquareName(int(mv.From)),
		To:        SquareName(int(mv.To)),
		Promotion: promoLetter(mv),
		SAN:       toSAN(b.pos, mv),
		UCI:       toUCI(mv),
		Color:     TurnOf(before),
		Before:    before,
		After:     child.ToFEN(),
		mv:        mv,
	}, nil
}

// Move plays from-to. promotion is one of q, r, b, n; empty promotes to a
// queen when the move requires it.
func (b *Board) Move(from, to, promotion string) (MoveInfo, error) {
	fromSq, err := ParseSquare(from)
	if err != nil {
		return MoveInfo{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	toSq, err := ParseSquare(to)
	if err != nil {
		return MoveInfo{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	promotion = strings.ToLower(promotion)

	var candidates []pgn.Mv
	for _, mv := range pgn.GenerateLegalMoves(b.pos) {
		if int(mv.From) == fromSq && int(mv.To) == toSq {
			candidates = append(candidates, mv)
		}
	}
	if len(candidates) == 0 {
		return MoveInfo{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
	}

	chosen := candidates[0]
	if len(candidates) > 1 || promoLetter(chosen) != "" {
		want := promotion
		if want == "" {
			want = "q"
		}
		found := false
		for _, mv := range candidates {
			if promoLetter(mv) == want {
				chosen = mv
				found = true
				break
			}
		}
		if !found {
			return MoveInfo{}, fmt.Errorf("%w: %s%s%s", ErrIllegalMove, from, to, promotion)
		}
	}
	return b.play(chosen)
}

// MoveSAN plays a move given in standard algebraic notation.
func (b *Board) MoveSAN(san string) (MoveInfo, error) {
	mv, err := pgn.ParseSAN(b.pos, cleanSAN(san))
	if err != nil {
		return MoveInfo{}, fmt.Errorf("%w: %q: %v", ErrIllegalMove, san, err)
	}
	return b.play(mv)
}

func (b *Board) play(mv pgn.Mv) (MoveInfo, error) {
	info, err := b.describe(mv, b.FEN())
	if err != nil {
		return MoveInfo{}, err
	}
	if err := pgn.ApplyMove(b.pos, mv); err != nil {
		return MoveInfo{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	b.history = append(b.history, info)
	b.seen[repetitionKey(info.After)]++
	return info, nil
}

// Undo takes back the last move.
func (b *Board) Undo() (MoveInfo, bool) {
	if len(b.history) == 0 {
		return MoveInfo{}, false
	}
	last := b.history[len(b.history)-1]
	pos, err := parseFEN(last.Before)
	if err != nil {
		return MoveInfo{}, false
	}
	key := repetitionKey(last.After)
	if b.seen[key] <= 1 {
		delete(b.seen, key)
	} else {
		b.seen[key]--
	}
	b.pos = pos
	b.history = b.history[:len(b.history)-1]
	return last, true
}

func promoLetter(mv pgn.Mv) string {
	switch mv.Promo {
	case pgn.PromoQueen:
		return "q"
	case pgn.PromoRook:
		return "r"
	case pgn.PromoBishop:
		return "b"
	case pgn.PromoKnight:
		return "n"
	}
	return ""
}

func toUCI(mv pgn.Mv) string {
	return SquareName(int(mv.From)) + SquareName(int(mv.To)) + promoLetter(mv)
}

// repetitionKey drops the move clocks so transpositions compare equal.
func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}
