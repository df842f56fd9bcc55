package engine

import (
	"reflect"
	"testing"
)

func intp(v int) *int { return &v }

func TestParseLineFullInfo(t *testing.T) {
	line := "info depth 18 seldepth 27 multipv 1 score cp -35 nodes 1843921 nps 1204000 hashfull 512 tbhits 0 time 1531 pv e7e5 g1f3 b8c6"
	info := ParseLine(line)

	if info.Depth == nil || *info.Depth != 18 {
		t.Errorf("depth = %v", info.Depth)
	}
	if info.SelDepth == nil || *info.SelDepth != 27 {
		t.Errorf("seldepth = %v", info.SelDepth)
	}
	if info.MultiPV == nil || *info.MultiPV != 1 {
		t.Errorf("multipv = %v", info.MultiPV)
	}
	if info.CP == nil || *info.CP != -35 {
		t.Errorf("cp = %v", info.CP)
	}
	if info.Mate != nil {
		t.Errorf("mate should be absent, got %d", *info.Mate)
	}
	if info.Nodes == nil || *info.Nodes != 1843921 {
		t.Errorf("nodes = %v", info.Nodes)
	}
	if info.NPS == nil || *info.NPS != 1204000 {
		t.Errorf("nps = %v", info.NPS)
	}
	if info.TimeMS == nil || *info.TimeMS != 1531 {
		t.Errorf("time = %v", info.TimeMS)
	}
	if want := []string{"e7e5", "g1f3", "b8c6"}; !reflect.DeepEqual(info.PV, want) {
		t.Errorf("pv = %v, want %v", info.PV, want)
	}
}

func TestParseLineMate(t *testing.T) {
	info := ParseLine("info depth 5 score mate -3 pv h7h8")
	if info.Mate == nil || *info.Mate != -3 {
		t.Fatalf("mate = %v", info.Mate)
	}
	if info.CP != nil {
		t.Errorf("cp should be absent")
	}
}

func TestParseLineMultiPVDoesNotLeakIntoPV(t *testing.T) {
	info := ParseLine("info multipv 2 depth 3 score cp 10 pv d2d4")
	if !reflect.DeepEqual(info.PV, []string{"d2d4"}) {
		t.Errorf("pv = %v", info.PV)
	}
	if info.MultiPV == nil || *info.MultiPV != 2 {
		t.Errorf("multipv = %v", info.MultiPV)
	}
}

func TestParseLineBoundsSkipped(t *testing.T) {
	info := ParseLine("info depth 12 score cp 44 lowerbound nodes 10")
	if info.CP == nil || *info.CP != 44 {
		t.Errorf("cp = %v", info.CP)
	}
	if info.Nodes == nil || *info.Nodes != 10 {
		t.Errorf("nodes = %v", info.Nodes)
	}
}

func TestParseLineNonInfoIsEmpty(t *testing.T) {
	lines := []string{
		"",
		"bestmove e2e4",
		"uciok",
		"readyok",
		"id name Stockfish 17",
		"information depth 3",
		"  ",
		"depth 10 score cp 5",
	}
	for _, line := range lines {
		if info := ParseLine(line); !info.IsEmpty() {
			t.Errorf("ParseLine(%q) = %+v, want empty", line, info)
		}
	}
}

func TestParseLineMalformedNumbersAbsent(t *testing.T) {
	info := ParseLine("info depth x seldepth 9999999999999999999999 score cp abc nodes -z time")
	if !info.IsEmpty() {
		t.Errorf("malformed info = %+v, want empty", info)
	}

	info = ParseLine("info depth 4 score")
	if info.Depth == nil || *info.Depth != 4 || info.CP != nil {
		t.Errorf("truncated score: %+v", info)
	}
}

func TestParseLineInfoString(t *testing.T) {
	info := ParseLine("info string NNUE evaluation using nn-1111.nnue depth 9")
	if !info.IsEmpty() {
		t.Errorf("info string parsed fields: %+v", info)
	}
}

func TestParseLineNeverPanics(t *testing.T) {
	inputs := []string{
		"info", "info score", "info score cp", "info score mate", "info pv",
		"info depth", "info nodes 1 nps", "info \x00\xff", "info score mate -",
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("ParseLine(%q) panicked: %v", in, r)
				}
			}()
			ParseLine(in)
		}()
	}
}

func TestParseBestMove(t *testing.T) {
	tests := []struct {
		line, move, ponder string
		ok                 bool
	}{
		{"bestmove e2e4", "e2e4", "", true},
		{"bestmove e7e8q ponder a2a1", "e7e8q", "a2a1", true},
		{"bestmove (none)", "(none)", "", true},
		{"bestmove", "", "", false},
		{"info depth 1", "", "", false},
	}
	for _, tt := range tests {
		move, ponder, ok := ParseBestMove(tt.line)
		if move != tt.move || ponder != tt.ponder || ok != tt.ok {
			t.Errorf("ParseBestMove(%q) = %q %q %v", tt.line, move, ponder, ok)
		}
	}
}

func TestApplyAccumulates(t *testing.T) {
	var r AnalysisResult
	r.Apply(ParseLine("info depth 1 score cp 15 nodes 20 pv e2e4"))
	r.Apply(ParseLine("info depth 2 seldepth 3"))
	if r.Depth != 2 || r.Evaluation != 15 || r.Nodes != 20 || len(r.PV) != 1 {
		t.Fatalf("accumulated = %+v", r)
	}
	if r.SelectiveDepth == nil || *r.SelectiveDepth != 3 {
		t.Errorf("seldepth = %v", r.SelectiveDepth)
	}
}

func TestApplyMateThenCP(t *testing.T) {
	var r AnalysisResult
	r.Apply(ParseLine("info depth 8 score mate 2 pv d1h5"))
	if r.Mate == nil || *r.Mate != 2 || r.Evaluation != MateScore {
		t.Fatalf("after mate: %+v", r)
	}
	r.Apply(ParseLine("info depth 9 score cp 300"))
	if r.Mate != nil {
		t.Errorf("cp score must clear mate, got %d", *r.Mate)
	}
	if r.Evaluation != 300 {
		t.Errorf("evaluation = %d", r.Evaluation)
	}

	r.Apply(ParseLine("info depth 10 score mate -1"))
	if r.Evaluation != -MateScore || r.Mate == nil || *r.Mate != -1 {
		t.Errorf("negative mate: %+v", r)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := AnalysisResult{PV: []string{"e2e4"}, Mate: intp(3)}
	c := r.Clone()
	c.PV[0] = "d2d4"
	*c.Mate = 5
	if r.PV[0] != "e2e4" || *r.Mate != 3 {
		t.Errorf("clone shares memory with original: %+v", r)
	}
}
