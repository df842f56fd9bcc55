// Package store persists engine settings, the analysis log and archived
// games in an embedded badger database.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Config configures the store.
type Config struct {
	Dir      string // database directory; ignored when InMemory
	InMemory bool
	Logger   zerolog.Logger
}

// Store wraps a badger database.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("store dir required")
	}
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		db:  db,
		log: cfg.Logger.With().Str("component", "store").Logger(),
		enc: enc,
		dec: dec,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close zstd encoder")
	}
	return s.db.Close()
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (s *Store) set(key string, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}
