package game

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/rules"
	"github.com/freeeve/chesscoach/internal/store"
)

func newTestGame(t *testing.T) *Game {
	t.Helper()
	db := rules.NewOpenings()
	if err := db.LoadReader(strings.NewReader("C20\tKing's Pawn Game\t1. e4 e5\n")); err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	return New(Config{Openings: db, Logger: zerolog.Nop()})
}

func TestMoveHistoryAndUndo(t *testing.T) {
	g := newTestGame(t)
	var changes int
	g.OnChange(func(State) { changes++ })

	for _, mv := range [][2]string{{"e2", "e4"}, {"e7", "e5"}} {
		if _, err := g.Move(mv[0], mv[1], ""); err != nil {
			t.Fatalf("Move %v: %v", mv, err)
		}
	}
	st := g.State()
	if len(st.History) != 2 || st.History[0].SAN != "e4" || st.History[1].Ply != 2 {
		t.Fatalf("history = %+v", st.History)
	}
	if st.Turn != rules.White || st.Status != rules.StatusActive || st.IsGameOver {
		t.Errorf("state = %+v", st)
	}
	if st.Opening == nil || st.Opening.ECO != "C20" {
		t.Errorf("opening = %+v", st.Opening)
	}
	if st.History[1].FEN != st.FEN {
		t.Error("last history entry should carry the current position")
	}

	if _, err := g.Move("e4", "e6", ""); !errors.Is(err, rules.ErrIllegalMove) {
		t.Errorf("illegal move = %v", err)
	}

	mv, ok := g.Undo()
	if !ok || mv.SAN != "e5" {
		t.Fatalf("Undo = %+v, %v", mv, ok)
	}
	if g.State().Opening != nil {
		t.Error("opening should no longer match after undo")
	}
	if changes != 3 {
		t.Errorf("observers ran %d times, want 3", changes)
	}
}

func TestStatusAfterMate(t *testing.T) {
	g := newTestGame(t)
	if err := g.LoadPGN("1. f3 e5 2. g4 Qh4#"); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	st := g.State()
	if st.Status != rules.StatusCheckmate || !st.IsGameOver || st.Result != "0-1" {
		t.Errorf("state = %+v", st)
	}
	if !strings.HasSuffix(g.PGN(), "2. g4 Qh4# 0-1") {
		t.Errorf("PGN = %q", g.PGN())
	}
}

func TestLoadFENAndReset(t *testing.T) {
	g := newTestGame(t)
	const fen = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	if err := g.LoadFEN(fen); err != nil {
		t.Fatalf("LoadFEN: %v", err)
	}
	if st := g.State(); st.Status != rules.StatusStalemate || st.Turn != rules.Black {
		t.Errorf("state = %+v", st)
	}
	if err := g.LoadFEN("nonsense"); !errors.Is(err, rules.ErrInvalidFEN) {
		t.Errorf("LoadFEN = %v", err)
	}

	g.Reset()
	start, _ := rules.NewBoard("")
	if g.FEN() != start.FEN() {
		t.Errorf("FEN after reset = %q", g.FEN())
	}
}

func TestDests(t *testing.T) {
	g := newTestGame(t)
	dests := g.Dests()
	if len(dests) != 10 {
		t.Errorf("%d squares with moves, want 10", len(dests))
	}
	if strings.Join(dests["g1"], ",") != "f3,h3" && strings.Join(dests["g1"], ",") != "h3,f3" {
		t.Errorf("g1 dests = %v", dests["g1"])
	}

	if err := g.LoadFEN("8/P7/8/8/8/8/7k/K7 w - - 0 1"); err != nil {
		t.Fatalf("LoadFEN: %v", err)
	}
	if got := g.Dests()["a7"]; len(got) != 1 || got[0] != "a8" {
		t.Errorf("promotion dests = %v", got)
	}
}

func TestArchive(t *testing.T) {
	s, err := store.Open(store.Config{InMemory: true, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	g := newTestGame(t)
	g.Move("d2", "d4", "")
	g.Move("d7", "d5", "")
	id, err := g.Save(s, "")
	if err != nil || id == "" {
		t.Fatalf("Save = %q, %v", id, err)
	}

	other := newTestGame(t)
	if err := other.Restore(s, id); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if other.FEN() != g.FEN() || len(other.State().History) != 2 {
		t.Errorf("restored %q, want %q", other.FEN(), g.FEN())
	}
	if err := other.Restore(s, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Restore missing = %v", err)
	}
}
