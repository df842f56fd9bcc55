package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

var tagRegex = regexp.MustCompile(`^\[(\w+)\s+"((?:[^"\\]|\\.)*)"\]$`)

var resultTokens = map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true, "*": true}

// LoadPGN replaces the board with the game in text. A FEN tag sets the
// starting position. On error the board is unchanged.
func (b *Board) LoadPGN(text string) error {
	tags, movetext := splitPGN(text)

	start := StartFEN
	if fen, ok := tags["FEN"]; ok {
		start = fen
	}
	nb, err := NewBoard(start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	for _, san := range sanTokens(movetext) {
		if _, err := nb.MoveSAN(san); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPGN, err)
		}
	}
	*b = *nb
	return nil
}

// PGN renders the history as movetext, with SetUp/FEN tags when the game
// did not start from the standard position.
func (b *Board) PGN() string {
	var sb strings.Builder
	if repetitionKey(b.startFEN) != repetitionKey(StartFEN) {
		fmt.Fprintf(&sb, "[SetUp \"1\"]\n[FEN \"%s\"]\n\n", b.startFEN)
	}

	num := fullMoveNumber(b.startFEN)
	for i, mv := range b.history {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch {
		case mv.Color == White:
			fmt.Fprintf(&sb, "%d. ", num)
		case i == 0:
			fmt.Fprintf(&sb, "%d... ", num)
		}
		sb.WriteString(mv.SAN)
		if mv.Color == Black {
			num++
		}
	}
	if res := b.Result(); res != "*" {
		if len(b.history) > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(res)
	}
	return sb.String()
}

func fullMoveNumber(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(fields[5], "%d", &n); err != nil || n < 1 {
		return 1
	}
	return n
}

// splitPGN separates tag pairs from movetext.
func splitPGN(text string) (map[string]string, string) {
	tags := make(map[string]string)
	var body strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := tagRegex.FindStringSubmatch(line); m != nil {
			tags[m[1]] = strings.ReplaceAll(m[2], `\"`, `"`)
			continue
		}
		if strings.HasPrefix(line, "%") {
			continue
		}
		body.WriteString(line)
		body.WriteByte(' ')
	}
	return tags, body.String()
}

// sanTokens strips comments, variations, NAGs, move numbers and results
// from movetext and returns the remaining SAN moves.
func sanTokens(movetext string) []string {
	var sb strings.Builder
	depth := 0
	inComment := false
	for _, r := range movetext {
		switch {
		case inComment:
			if r == '}' {
				inComment = false
			}
		case r == '{':
			inComment = true
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			sb.WriteRune(r)
		}
	}

	cleaned := moveNumberRegex.ReplaceAllString(sb.String(), " ")
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if tok[0] == '$' || resultTokens[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
