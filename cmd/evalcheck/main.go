// Command evalcheck analyzes a set of positions with both the session client
// and the reference client and reports where their player-perspective scores
// disagree in sign or mate distance.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/eval"
	"github.com/freeeve/chesscoach/internal/logx"
	"github.com/freeeve/chesscoach/internal/rules"
)

// defaultPositions covers both sides to move, with and without forced mates.
var defaultPositions = []string{
	rules.StartFEN,
	"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
	"3r2k1/5ppp/8/8/8/8/5PPP/6K1 b - - 0 1",
	"r1bqkbnr/pppp1ppp/2n5/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 2 3",
}

func readPositions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// agree reports whether two player-perspective scores point the same way.
func agree(a, b eval.Score) bool {
	if (a.Mate == nil) != (b.Mate == nil) {
		return false
	}
	if a.Mate != nil {
		return *a.Mate == *b.Mate
	}
	return (a.Evaluation > 0) == (b.Evaluation > 0) || a.Evaluation == b.Evaluation
}

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}
	var (
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		depth         = flag.Int("depth", 14, "search depth")
		positionsPath = flag.String("positions", "", "file with one FEN per line (default: built-in set)")
	)
	flag.Parse()

	logger := logx.NewLogger()

	positions := defaultPositions
	if *positionsPath != "" {
		var err error
		if positions, err = readPositions(*positionsPath); err != nil {
			logger.Fatal().Err(err).Msg("read positions")
		}
	}
	for _, fen := range positions {
		if _, err := rules.NewBoard(fen); err != nil {
			logger.Fatal().Err(err).Str("fen", fen).Msg("invalid position")
		}
	}

	ctx := context.Background()
	cfg := config.Default()
	cfg.Depth = *depth

	sess := engine.NewSession(engine.SessionConfig{Engine: cfg, Logger: logger}, engine.NewProcessTransport(engine.ProcessConfig{
		Path:   *stockfishPath,
		Logger: logger,
	}))
	initCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	err := sess.Initialize(initCtx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialize session")
	}
	defer sess.Quit()

	ref, err := engine.NewReference(engine.ReferenceConfig{
		Path:    *stockfishPath,
		Depth:   *depth,
		Threads: cfg.Threads,
		HashMB:  cfg.Hash,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("start reference engine")
	}
	defer ref.Close()

	mismatches := 0
	for _, fen := range positions {
		white := rules.TurnOf(fen) == rules.White

		got, err := sess.Analyze(ctx, fen)
		if err != nil {
			logger.Error().Err(err).Str("fen", fen).Msg("session analyze")
			mismatches++
			continue
		}
		want, err := ref.Analyze(ctx, fen)
		if err != nil {
			logger.Error().Err(err).Str("fen", fen).Msg("reference analyze")
			mismatches++
			continue
		}

		a := eval.ToPlayerPerspective(eval.Score{Evaluation: got.Evaluation, Mate: got.Mate}, white)
		b := eval.ToPlayerPerspective(eval.Score{Evaluation: want.Evaluation, Mate: want.Mate}, white)
		ev := logger.Info()
		if !agree(a, b) {
			mismatches++
			ev = logger.Warn()
		}
		ev.Str("fen", fen).
			Int("session", a.Evaluation).
			Int("reference", b.Evaluation).
			Str("session_best", got.BestMove).
			Str("reference_best", want.BestMove).
			Msg("checked")
	}

	fmt.Printf("\nChecked %d positions, %d mismatches\n", len(positions), mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}
