package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/engine"
	"github.com/freeeve/chesscoach/internal/eval"
	"github.com/freeeve/chesscoach/internal/game"
	"github.com/freeeve/chesscoach/internal/httpapi"
	"github.com/freeeve/chesscoach/internal/logx"
	"github.com/freeeve/chesscoach/internal/rules"
	"github.com/freeeve/chesscoach/internal/store"
)

// engines builds analyzers for an engine configuration.
type engines struct {
	path            string
	backend         string
	nice            int
	poolSize        int
	analysisTimeout time.Duration
	log             zerolog.Logger

	// transport overrides the Stockfish subprocess.
	transport func() engine.Transport
}

// newSession creates an uninitialized session.
func (e *engines) newSession(cfg config.EngineConfig) *engine.Session {
	var t engine.Transport
	if e.transport != nil {
		t = e.transport()
	} else {
		t = engine.NewProcessTransport(engine.ProcessConfig{
			Path:   e.path,
			Nice:   e.nice,
			Logger: e.log.With().Str("component", "stockfish").Logger(),
		})
	}
	return engine.NewSession(engine.SessionConfig{
		Engine:          cfg,
		AnalysisTimeout: e.analysisTimeout,
		Logger:          e.log.With().Str("component", "session").Logger(),
	}, t)
}

// session starts and initializes one engine session.
func (e *engines) session(ctx context.Context, cfg config.EngineConfig) (*engine.Session, error) {
	s := e.newSession(cfg)
	initCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := s.Initialize(initCtx); err != nil {
		return nil, err
	}
	return s, nil
}

// analyzer returns a Reference, a Pool when parallel move evaluation is on,
// or a single Session.
func (e *engines) analyzer(ctx context.Context, cfg config.EngineConfig) (eval.Analyzer, error) {
	switch e.backend {
	case "reference":
		return engine.NewReference(engine.ReferenceConfig{
			Path:    e.path,
			Depth:   cfg.Depth,
			Threads: cfg.Threads,
			HashMB:  cfg.Hash,
			Nice:    e.nice,
			Logger:  e.log.With().Str("component", "reference").Logger(),
		})
	case "session":
	default:
		return nil, fmt.Errorf("unknown backend %q", e.backend)
	}

	if !cfg.ParallelMoveEval {
		return e.session(ctx, cfg)
	}
	p, err := eval.NewPool(eval.PoolConfig{
		Size:       e.poolSize,
		NewSession: func() (*engine.Session, error) { return e.newSession(cfg), nil },
		Logger:     e.log,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func closeAnalyzer(a eval.Analyzer) {
	switch a := a.(type) {
	case *engine.Session:
		a.Quit()
	case *eval.Pool:
		a.Close()
	case *engine.Reference:
		a.Close()
	}
}

// services are the long-lived components behind the API. Move evaluation,
// position analysis and continuous analysis each own their engine, so a
// stop sent by one never ends another's search.
type services struct {
	log zerolog.Logger

	moves       *eval.Backend // coordinator; a pool in parallel mode
	positions   *eval.Backend // single-position analysis
	coordinator *eval.Coordinator
	analysis    *eval.Analysis
	continuous  *eval.Continuous
	contSession *engine.Session
	game        *game.Game
}

func newServices(ctx context.Context, eng *engines, cfgMgr *config.Manager, st *store.Store, openings *rules.Openings) *services {
	log := eng.log
	cfg := cfgMgr.Get()
	s := &services{
		log:       log,
		moves:     eval.NewBackend(nil),
		positions: eval.NewBackend(nil),
	}

	// The API stays up without an engine; analysis endpoints report not ready.
	if a, err := eng.analyzer(ctx, cfg); err != nil {
		log.Error().Err(err).Str("stockfish", eng.path).Msg("engine unavailable")
	} else {
		s.moves.Swap(a)
	}
	if a, err := eng.analyzer(ctx, serial(cfg)); err != nil {
		log.Error().Err(err).Msg("position analysis engine unavailable")
	} else {
		s.positions.Swap(a)
	}

	cfgMgr.OnChange(func(old, next config.EngineConfig) {
		restart := old.RequiresRestart(next)
		if restart || old.ParallelMoveEval != next.ParallelMoveEval {
			s.rebuild(ctx, eng, s.moves, next)
		}
		if restart {
			s.rebuild(ctx, eng, s.positions, serial(next))
		}
	})

	s.coordinator = eval.NewCoordinator(eval.CoordinatorConfig{
		Analyzer: s.moves,
		Logger:   log,
	})
	s.analysis = eval.NewAnalysis(eval.AnalysisConfig{
		Analyzer: s.positions,
		Recorder: st,
		Logger:   log,
	})
	s.game = game.New(game.Config{Openings: openings, Logger: log})

	if eng.backend == "session" {
		contSession, err := eng.session(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("continuous analysis disabled")
		} else {
			s.contSession = contSession
			s.continuous = eval.NewContinuous(eval.ContinuousConfig{
				Session: contSession,
				Flags:   st,
				Logger:  log,
			})
			if s.continuous.Enabled() {
				if err := s.continuous.Start(s.game.FEN()); err != nil {
					log.Warn().Err(err).Msg("start continuous analysis")
				}
			}
		}
	}

	s.game.OnChange(func(gs game.State) {
		s.coordinator.Clear()
		if s.continuous != nil && s.continuous.Enabled() {
			if err := s.continuous.Start(gs.FEN); err != nil {
				log.Warn().Err(err).Msg("restart continuous analysis")
			}
		}
	})
	return s
}

// serial is cfg without parallel move evaluation.
func serial(cfg config.EngineConfig) config.EngineConfig {
	cfg.ParallelMoveEval = false
	return cfg
}

// rebuild swaps a freshly built analyzer into b and closes the old one.
func (s *services) rebuild(ctx context.Context, eng *engines, b *eval.Backend, cfg config.EngineConfig) {
	a, err := eng.analyzer(ctx, cfg)
	if err != nil {
		s.log.Error().Err(err).Msg("restart engine")
		return
	}
	if prev := b.Swap(a); prev != nil {
		prev.Stop()
		go closeAnalyzer(prev)
	}
	s.log.Info().
		Int("depth", cfg.Depth).
		Bool("parallel", cfg.ParallelMoveEval).
		Msg("engine restarted with new config")
}

func (s *services) deps(cfgMgr *config.Manager, st *store.Store) httpapi.Deps {
	return httpapi.Deps{
		Game:        s.game,
		Coordinator: s.coordinator,
		Analysis:    s.analysis,
		Continuous:  s.continuous,
		Config:      cfgMgr,
		Backend:     s.moves,
		Archive:     st,
	}
}

func (s *services) close() {
	s.coordinator.Stop()
	s.coordinator.Close()
	if s.continuous != nil {
		s.continuous.Close()
		s.contSession.Quit()
	}
	for _, b := range []*eval.Backend{s.moves, s.positions} {
		if a := b.Swap(nil); a != nil {
			closeAnalyzer(a)
		}
	}
}

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}
	defaultData := "./data/chesscoach"
	if envDir := os.Getenv("CHESSCOACH_DATA"); envDir != "" {
		defaultData = envDir
	}

	var (
		// Server
		addr = flag.String("addr", ":8007", "listen address")

		// Data
		dataDir = flag.String("data", defaultData, "settings and analysis store directory")
		ecoDir  = flag.String("eco-dir", "./data/eco", "Directory containing ECO .tsv files")

		// Engine
		stockfishPath   = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		backend         = flag.String("backend", "session", "analyzer backend: session or reference")
		poolSize        = flag.Int("pool-size", 4, "engine sessions for parallel move evaluation")
		nice            = flag.Int("nice", 0, "nice value for Stockfish processes (0=disabled)")
		analysisTimeout = flag.Duration("analysis-timeout", 30*time.Second, "per-analysis timeout")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logx.NewLoggerLevel(*logLevel)

	st, err := store.Open(store.Config{Dir: *dataDir, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()
	logger.Info().Str("dir", *dataDir).Msg("opened store")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgMgr := config.NewManager(st, logger.With().Str("component", "config").Logger())
	cfgMgr.Load()

	eng := &engines{
		path:            *stockfishPath,
		backend:         *backend,
		nice:            *nice,
		poolSize:        *poolSize,
		analysisTimeout: *analysisTimeout,
		log:             logger,
	}

	var openings *rules.Openings
	if *ecoDir != "" {
		openings = rules.NewOpenings()
		if err := openings.LoadDir(*ecoDir); err != nil {
			logger.Warn().Err(err).Str("dir", *ecoDir).Msg("failed to load ECO database")
			openings = nil
		} else {
			logger.Info().Int("openings", openings.Count()).Msg("ECO database loaded")
		}
	}

	svc := newServices(ctx, eng, cfgMgr, st, openings)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, svc.deps(cfgMgr, st)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	svc.close()
	logger.Info().Msg("shutdown complete")
}
