package rules

import "fmt"

const (
	files = "abcdefgh"
	ranks = "12345678"
)

// ParseSquare converts algebraic notation ("e4") to a 0..63 index (a1=0, h8=63).
func ParseSquare(sq string) (int, error) {
	if len(sq) != 2 || sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return 0, fmt.Errorf("invalid square %q", sq)
	}
	return int(sq[1]-'1')*8 + int(sq[0]-'a'), nil
}

// SquareName converts a 0..63 index to algebraic notation.
func SquareName(idx int) string {
	if idx < 0 || idx > 63 {
		return ""
	}
	return string(files[idx%8]) + string(ranks[idx/8])
}
