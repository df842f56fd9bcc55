package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/freeeve/chesscoach/internal/logx"
	"github.com/freeeve/chesscoach/internal/store"
)

func main() {
	var (
		dataDir   = flag.String("data", "./data/chesscoach", "store directory")
		inputPath = flag.String("input", "evals.csv.zst", "input CSV file (.zst and .gz are decompressed)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	st, err := store.Open(store.Config{Dir: *dataDir, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	in, err := store.OpenFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input file: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	fmt.Printf("Importing analyses from %s...\n", *inputPath)
	stats, err := st.ImportCSV(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import: %v (imported %d before failing)\n", err, stats.Imported)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Imported %d analyses (skipped %d)\n", stats.Imported, stats.Skipped)
}
