package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Opening is an ECO classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Openings maps positions reached by named opening lines to their ECO code.
type Openings struct {
	byPosition map[pgn.PackedPosition]Opening
}

// NewOpenings creates an empty database.
func NewOpenings() *Openings {
	return &Openings{byPosition: make(map[pgn.PackedPosition]Opening)}
}

// LoadDir loads every .tsv file in dir.
func (o *Openings) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = o.LoadReader(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LoadReader reads "eco<TAB>name<TAB>movetext" rows. A header row and lines
// whose moves do not replay are skipped.
func (o *Openings) LoadReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "eco\t") {
				continue
			}
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		b, err := NewBoard(StartFEN)
		if err != nil {
			return err
		}
		ok := true
		for _, san := range sanTokens(parts[2]) {
			if _, err := b.MoveSAN(san); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		o.byPosition[b.pos.Pack()] = Opening{ECO: parts[0], Name: parts[1]}
	}
	return scanner.Err()
}

// Lookup returns the opening of the board's current position, or nil.
func (o *Openings) Lookup(b *Board) *Opening {
	if o == nil || b == nil {
		return nil
	}
	if op, ok := o.byPosition[b.pos.Pack()]; ok {
		return &op
	}
	return nil
}

// Count returns the number of positions loaded.
func (o *Openings) Count() int {
	return len(o.byPosition)
}
