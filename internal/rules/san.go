package rules

import (
	"strings"

	"github.com/freeeve/pgn/v3"
)

const (
	flagEnPassant = 2
	flagCastle    = 4
)

// toSAN renders mv in standard algebraic notation relative to pos.
func toSAN(pos *pgn.GameState, mv pgn.Mv) string {
	san := sanBody(pos, mv)

	after := pos.Pack().Unpack()
	if after != nil && pgn.ApplyMove(after, mv) == nil && after.IsInCheck() {
		if len(pgn.GenerateLegalMoves(after)) == 0 {
			return san + "#"
		}
		return san + "+"
	}
	return san
}

func sanBody(pos *pgn.GameState, mv pgn.Mv) string {
	if mv.Flags == flagCastle {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromSq, toSq := int(mv.From), int(mv.To)
	piece := upper(pos.PieceAt(mv.From))
	capture := pos.PieceAt(mv.To) != 0 || mv.Flags == flagEnPassant

	var sb strings.Builder
	if piece == 'P' {
		if capture {
			sb.WriteByte(files[fromSq%8])
			sb.WriteByte('x')
		}
		sb.WriteString(SquareName(toSq))
		if p := promoLetter(mv); p != "" {
			sb.WriteByte('=')
			sb.WriteString(strings.ToUpper(p))
		}
		return sb.String()
	}

	sb.WriteByte(byte(piece))
	if piece != 'K' {
		sb.WriteString(disambiguation(pos, mv, piece))
	}
	if capture {
		sb.WriteByte('x')
	}
	sb.WriteString(SquareName(toSq))
	return sb.String()
}

// disambiguation returns the file, rank or square needed to tell mv apart
// from other moves of the same piece type to the same square.
func disambiguation(pos *pgn.GameState, mv pgn.Mv, piece byte) string {
	fromSq := int(mv.From)
	ambiguous, sameFile, sameRank := false, false, false
	for _, other := range pgn.GenerateLegalMoves(pos) {
		if other.To != mv.To || other.From == mv.From || upper(pos.PieceAt(other.From)) != piece {
			continue
		}
		ambiguous = true
		if int(other.From)%8 == fromSq%8 {
			sameFile = true
		}
		if int(other.From)/8 == fromSq/8 {
			sameRank = true
		}
	}
	switch {
	case !ambiguous:
		return ""
	case !sameFile:
		return string(files[fromSq%8])
	case !sameRank:
		return string(ranks[fromSq/8])
	default:
		return SquareName(fromSq)
	}
}

func upper[T ~byte | ~rune](p T) byte {
	b := byte(p)
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

// cleanSAN strips check marks and annotation glyphs the parser does not accept.
func cleanSAN(san string) string {
	return strings.TrimRight(strings.TrimSpace(san), "+#!?")
}
