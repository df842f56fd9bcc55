package engine

import (
	"strconv"
	"strings"
)

// MateScore is the centipawn magnitude stored in AnalysisResult.Evaluation
// while a mate score is current. Consumers branch on Mate, not on this value.
const MateScore = 10000

// Info holds the fields of one "info" line. Absent fields are nil.
type Info struct {
	Depth    *int
	SelDepth *int
	CP       *int
	Mate     *int
	Nodes    *int64
	NPS      *int64
	TimeMS   *int
	MultiPV  *int
	PV       []string
}

// IsEmpty reports whether no field was parsed.
func (i Info) IsEmpty() bool {
	return i.Depth == nil && i.SelDepth == nil && i.CP == nil && i.Mate == nil &&
		i.Nodes == nil && i.NPS == nil && i.TimeMS == nil && i.MultiPV == nil &&
		len(i.PV) == 0
}

// ParseLine extracts the recognized fields of an engine "info" line. Any other
// line yields an empty Info. Numbers that fail to parse are left absent.
func ParseLine(line string) Info {
	var info Info
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return info
	}

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			info.Depth = intAt(fields, i+1)
			i++
		case "seldepth":
			info.SelDepth = intAt(fields, i+1)
			i++
		case "multipv":
			info.MultiPV = intAt(fields, i+1)
			i++
		case "time":
			info.TimeMS = intAt(fields, i+1)
			i++
		case "nodes":
			info.Nodes = int64At(fields, i+1)
			i++
		case "nps":
			info.NPS = int64At(fields, i+1)
			i++
		case "score":
			if i+2 < len(fields) {
				switch fields[i+1] {
				case "cp":
					info.CP = intAt(fields, i+2)
				case "mate":
					info.Mate = intAt(fields, i+2)
				}
				i += 2
			}
		case "pv":
			if i+1 < len(fields) {
				info.PV = append([]string(nil), fields[i+1:]...)
			}
			return info
		case "string":
			// free text until end of line
			return info
		}
	}
	return info
}

// ParseBestMove recognizes "bestmove <move> [ponder <move>]".
func ParseBestMove(line string) (move, ponder string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", "", false
	}
	move = fields[1]
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			ponder = fields[i+1]
			break
		}
	}
	return move, ponder, true
}

// IsBestMove reports whether line is a terminal bestmove line.
func IsBestMove(line string) bool {
	return strings.HasPrefix(line, "bestmove")
}

func intAt(fields []string, i int) *int {
	if i >= len(fields) {
		return nil
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return nil
	}
	return &v
}

func int64At(fields []string, i int) *int64 {
	if i >= len(fields) {
		return nil
	}
	v, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
