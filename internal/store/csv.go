package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CSVHeader is the column layout of exported analyses.
var CSVHeader = []string{"fen", "best_move", "cp", "mate", "depth", "nodes", "time_ms"}

// ExportCSV writes the analysis log to w and returns the number of rows.
func (s *Store) ExportCSV(w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	n := 0
	var werr error
	err := s.IterateAnalyses(func(rec Record) bool {
		mate := ""
		if rec.Mate != nil {
			mate = strconv.Itoa(*rec.Mate)
		}
		row := []string{
			rec.FEN,
			rec.BestMove,
			strconv.Itoa(rec.CP),
			mate,
			strconv.Itoa(rec.Depth),
			strconv.FormatInt(rec.Nodes, 10),
			strconv.Itoa(rec.TimeMS),
		}
		if werr = writer.Write(row); werr != nil {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return n, err
	}
	if werr != nil {
		return n, fmt.Errorf("write row: %w", werr)
	}
	writer.Flush()
	return n, writer.Error()
}

// ImportStats counts the outcome of ImportCSV.
type ImportStats struct {
	Imported int
	Skipped  int
}

// ImportCSV appends the rows of an exported CSV to the analysis log. Rows
// that do not parse are skipped.
func (s *Store) ImportCSV(r io.Reader) (ImportStats, error) {
	var stats ImportStats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(CSVHeader) || header[0] != "fen" {
		return stats, fmt.Errorf("invalid header: expected %v, got %v", CSVHeader, header)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if strings.Contains(err.Error(), "unexpected EOF") {
				break
			}
			stats.Skipped++
			continue
		}
		rec, ok := parseRow(row)
		if !ok {
			stats.Skipped++
			continue
		}
		if err := s.AppendAnalysis(rec); err != nil {
			return stats, err
		}
		stats.Imported++
	}
	return stats, nil
}

func parseRow(row []string) (Record, bool) {
	if len(row) < len(CSVHeader) || row[0] == "" {
		return Record{}, false
	}
	cp, err := strconv.Atoi(row[2])
	if err != nil {
		return Record{}, false
	}
	rec := Record{FEN: row[0], BestMove: row[1], CP: cp}
	if row[3] != "" {
		m, err := strconv.Atoi(row[3])
		if err != nil {
			return Record{}, false
		}
		rec.Mate = &m
	}
	rec.Depth, _ = strconv.Atoi(row[4])
	rec.Nodes, _ = strconv.ParseInt(row[5], 10, 64)
	rec.TimeMS, _ = strconv.Atoi(row[6])
	return rec, true
}

// OpenFile opens path for reading, decompressing .zst and .gz files.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, close: func() error { zr.Close(); return f.Close() }}, nil
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readCloser{Reader: gr, close: func() error { gr.Close(); return f.Close() }}, nil
	}
	return f, nil
}

// CreateFile creates path for writing, compressing .zst and .gz files.
func CreateFile(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, err
		}
		return &writeCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
	case strings.HasSuffix(path, ".gz"):
		gw := gzip.NewWriter(f)
		return &writeCloser{Writer: gw, closers: []io.Closer{gw, f}}, nil
	}
	return f, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

// Close flushes the compressor before closing the file.
func (w *writeCloser) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
