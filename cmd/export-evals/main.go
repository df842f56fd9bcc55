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
		dataDir    = flag.String("data", "./data/chesscoach", "store directory")
		outputPath = flag.String("output", "evals.csv.zst", "output CSV file (.zst and .gz are compressed)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	st, err := store.Open(store.Config{Dir: *dataDir, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	total, err := st.CountAnalyses()
	if err != nil {
		fmt.Fprintf(os.Stderr, "count analyses: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exporting %d analyses from %s\n", total, *dataDir)

	out, err := store.CreateFile(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}

	n, err := st.ExportCSV(out)
	if err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close output file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nDone! Exported %d analyses to %s\n", n, *outputPath)
}
