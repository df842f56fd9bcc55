package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestPGNRoundTrip(t *testing.T) {
	b := mustBoard(t, StartFEN)
	playSAN(t, b, "e4", "e5", "Nf3", "Nc6", "Bb5")

	text := b.PGN()
	if text != "1. e4 e5 2. Nf3 Nc6 3. Bb5" {
		t.Errorf("PGN = %q", text)
	}

	loaded := mustBoard(t, "")
	if err := loaded.LoadPGN(text); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if loaded.FEN() != b.FEN() {
		t.Errorf("FEN mismatch: %q vs %q", loaded.FEN(), b.FEN())
	}
	if len(loaded.History()) != 5 {
		t.Errorf("history length %d, want 5", len(loaded.History()))
	}
}

func TestLoadPGNIgnoresAnnotations(t *testing.T) {
	text := `[Event "Casual"]
[White "a"]
[Black "b"]

1. e4 {best by test} e5 2. Nf3 (2. f4 exf4) Nc6 $1 3. Bc4! Bc5?! *`

	b := mustBoard(t, "")
	if err := b.LoadPGN(text); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	hist := b.History()
	if len(hist) != 6 {
		t.Fatalf("history length %d, want 6", len(hist))
	}
	if hist[5].SAN != "Bc5" {
		t.Errorf("last move %q, want Bc5", hist[5].SAN)
	}
}

func TestLoadPGNWithFEN(t *testing.T) {
	const fen = "4k3/8/8/8/8/8/4P3/4K3 b - - 0 12"
	src := mustBoard(t, fen)
	playSAN(t, src, "Kd7", "e4")

	text := src.PGN()
	if !strings.Contains(text, `[FEN "`) || !strings.Contains(text, "12... Kd7 13. e4") {
		t.Errorf("PGN = %q", text)
	}

	b := mustBoard(t, "")
	if err := b.LoadPGN(text); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if b.FEN() != src.FEN() {
		t.Errorf("FEN = %q, want %q", b.FEN(), src.FEN())
	}
}

func TestLoadPGNIllegal(t *testing.T) {
	b := mustBoard(t, "")
	playSAN(t, b, "d4")
	before := b.FEN()

	if err := b.LoadPGN("1. e4 e4"); !errors.Is(err, ErrInvalidPGN) {
		t.Fatalf("expected ErrInvalidPGN, got %v", err)
	}
	if b.FEN() != before {
		t.Error("failed LoadPGN changed the board")
	}
}

func TestOpenings(t *testing.T) {
	const tsv = "eco\tname\tpgn\n" +
		"B00\tKing's Pawn Game\t1. e4\n" +
		"C50\tItalian Game\t1. e4 e5 2. Nf3 Nc6 3. Bc4\n" +
		"X99\tBroken\t1. e5\n"

	db := NewOpenings()
	if err := db.LoadReader(strings.NewReader(tsv)); err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if db.Count() != 2 {
		t.Errorf("Count = %d, want 2", db.Count())
	}

	b := mustBoard(t, "")
	if op := db.Lookup(b); op != nil {
		t.Errorf("start position matched %+v", op)
	}
	playSAN(t, b, "e4")
	if op := db.Lookup(b); op == nil || op.ECO != "B00" {
		t.Errorf("after 1. e4 got %+v", op)
	}
	playSAN(t, b, "e5", "Nf3", "Nc6", "Bc4")
	if op := db.Lookup(b); op == nil || op.ECO != "C50" {
		t.Errorf("Italian got %+v", op)
	}
}

func TestStandardMovesFrom(t *testing.T) {
	moves, err := Standard{}.MovesFrom(StartFEN, "g1")
	if err != nil {
		t.Fatalf("MovesFrom: %v", err)
	}
	if len(moves) != 2 {
		t.Errorf("got %d knight moves, want 2", len(moves))
	}
	if _, err := (Standard{}).MovesFrom("bad", "e2"); !errors.Is(err, ErrInvalidFEN) {
		t.Errorf("expected ErrInvalidFEN, got %v", err)
	}
}
