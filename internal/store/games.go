package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const gamePrefix = "game/"

// SaveGame archives a PGN under id, zstd-compressed.
func (s *Store) SaveGame(id, pgn string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("invalid game id %q", id)
	}
	return s.set(gamePrefix+id, s.enc.EncodeAll([]byte(pgn), nil))
}

// LoadGame returns the archived PGN of id.
func (s *Store) LoadGame(id string) (string, error) {
	data, err := s.get(gamePrefix + id)
	if err != nil {
		return "", err
	}
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompress game %s: %w", id, err)
	}
	return string(raw), nil
}

// DeleteGame removes an archived game.
func (s *Store) DeleteGame(id string) error {
	if _, err := s.get(gamePrefix + id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(gamePrefix + id))
	})
}

// ListGames returns the archived game ids in key order.
func (s *Store) ListGames() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(gamePrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), gamePrefix))
		}
		return nil
	})
	return ids, err
}
