package game

import (
	"fmt"
	"time"
)

// Archive stores finished or saved games as PGN.
type Archive interface {
	SaveGame(id, pgn string) error
	LoadGame(id string) (string, error)
	ListGames() ([]string, error)
}

// Save archives the game. An empty id is replaced by a timestamp id, which
// is returned.
func (g *Game) Save(a Archive, id string) (string, error) {
	if id == "" {
		id = time.Now().UTC().Format("20060102T150405.000000000")
	}
	if err := a.SaveGame(id, g.PGN()); err != nil {
		return "", fmt.Errorf("save game %s: %w", id, err)
	}
	return id, nil
}

// Restore replaces the game with an archived one.
func (g *Game) Restore(a Archive, id string) error {
	pgn, err := a.LoadGame(id)
	if err != nil {
		return fmt.Errorf("load game %s: %w", id, err)
	}
	return g.LoadPGN(pgn)
}
