package rules

import (
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Status names the state of a position for display.
type Status string

const (
	StatusActive               Status = "active"
	StatusCheck                Status = "check"
	StatusCheckmate            Status = "checkmate"
	StatusStalemate            Status = "stalemate"
	StatusInsufficientMaterial Status = "insufficient-material"
	StatusThreefold            Status = "threefold-repetition"
	StatusFiftyMove            Status = "fifty-move-rule"
	StatusDraw                 Status = "draw"
)

// IsCheck reports whether the side to move is in check.
func (b *Board) IsCheck() bool {
	return b.pos.IsInCheck()
}

func (b *Board) hasMoves() bool {
	return len(pgn.GenerateLegalMoves(b.pos)) > 0
}

// IsCheckmate reports whether the side to move is mated.
func (b *Board) IsCheckmate() bool {
	return b.IsCheck() && !b.hasMoves()
}

// IsStalemate reports whether the side to move has no moves and is not in check.
func (b *Board) IsStalemate() bool {
	return !b.IsCheck() && !b.hasMoves()
}

// IsThreefoldRepetition reports whether the current position occurred three
// times since the last Load.
func (b *Board) IsThreefoldRepetition() bool {
	return b.seen[repetitionKey(b.FEN())] >= 3
}

// IsFiftyMoveRule reports whether the halfmove clock reached 100.
func (b *Board) IsFiftyMoveRule() bool {
	fields := strings.Fields(b.FEN())
	if len(fields) < 5 {
		return false
	}
	n, err := strconv.Atoi(fields[4])
	return err == nil && n >= 100
}

// IsInsufficientMaterial reports K v K, K+minor v K and K+B v K+B with
// bishops on the same colour.
func (b *Board) IsInsufficientMaterial() bool {
	placement := strings.Fields(b.FEN())[0]
	var minors []byte
	var bishopColors []int
	sq := 56
	for i := 0; i < len(placement); i++ {
		c := placement[i]
		switch {
		case c == '/':
			sq -= 16
			continue
		case c >= '1' && c <= '8':
			sq += int(c - '0')
			continue
		}
		switch upper(c) {
		case 'K':
		case 'B':
			minors = append(minors, c)
			bishopColors = append(bishopColors, (sq/8+sq%8)%2)
		case 'N':
			minors = append(minors, c)
		default:
			return false
		}
		sq++
	}

	switch len(minors) {
	case 0, 1:
		return true
	}
	if len(bishopColors) != len(minors) {
		return false
	}
	for _, c := range bishopColors[1:] {
		if c != bishopColors[0] {
			return false
		}
	}
	return true
}

// IsDraw reports any drawing condition.
func (b *Board) IsDraw() bool {
	return b.IsStalemate() || b.IsInsufficientMaterial() || b.IsThreefoldRepetition() || b.IsFiftyMoveRule()
}

// IsGameOver reports checkmate or a draw.
func (b *Board) IsGameOver() bool {
	return b.IsCheckmate() || b.IsDraw()
}

// Status classifies the current position. Checkmate wins over the draw
// conditions; check is reported only when the game continues.
func (b *Board) Status() Status {
	switch {
	case b.IsCheckmate():
		return StatusCheckmate
	case b.IsStalemate():
		return StatusStalemate
	case b.IsInsufficientMaterial():
		return StatusInsufficientMaterial
	case b.IsThreefoldRepetition():
		return StatusThreefold
	case b.IsFiftyMoveRule():
		return StatusFiftyMove
	case b.IsCheck():
		return StatusCheck
	}
	return StatusActive
}

// Result returns the PGN result token for the current position.
func (b *Board) Result() string {
	switch {
	case b.IsCheckmate():
		if b.Turn() == White {
			return "0-1"
		}
		return "1-0"
	case b.IsDraw():
		return "1/2-1/2"
	}
	return "*"
}
