package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/freeeve/chesscoach/internal/engine"
)

const analysisPrefix = "analysis/"

// Record is one completed analysis. CP is the engine's side-to-move score.
type Record struct {
	FEN      string    `json:"fen"`
	BestMove string    `json:"best_move"`
	CP       int       `json:"cp"`
	Mate     *int      `json:"mate,omitempty"`
	Depth    int       `json:"depth"`
	Nodes    int64     `json:"nodes"`
	TimeMS   int       `json:"time_ms"`
	PV       []string  `json:"pv,omitempty"`
	At       time.Time `json:"at"`
}

var (
	keyMu   sync.Mutex
	lastKey int64
)

// nextAnalysisKey returns a strictly increasing timestamp key.
func nextAnalysisKey(at time.Time) string {
	keyMu.Lock()
	defer keyMu.Unlock()
	n := at.UnixNano()
	if n <= lastKey {
		n = lastKey + 1
	}
	lastKey = n
	return fmt.Sprintf("%s%020d", analysisPrefix, n)
}

// AppendAnalysis adds rec to the analysis log.
func (s *Store) AppendAnalysis(rec Record) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.set(nextAnalysisKey(rec.At), data)
}

// RecordAnalysis appends a finished engine result for fen.
func (s *Store) RecordAnalysis(fen string, res engine.AnalysisResult) error {
	return s.AppendAnalysis(Record{
		FEN:      fen,
		BestMove: res.BestMove,
		CP:       res.Evaluation,
		Mate:     res.Mate,
		Depth:    res.Depth,
		Nodes:    res.Nodes,
		TimeMS:   res.TimeMS,
		PV:       res.PV,
	})
}

// IterateAnalyses calls fn for every record in insertion order until fn
// returns false. Undecodable records are skipped.
func (s *Store) IterateAnalyses(fn func(Record) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(analysisPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				s.log.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skip corrupt analysis record")
				continue
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
}

// CountAnalyses returns the number of records in the analysis log.
func (s *Store) CountAnalyses() (int, error) {
	n := 0
	err := s.IterateAnalyses(func(Record) bool {
		n++
		return true
	})
	return n, err
}
