package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/eval"
	"github.com/freeeve/chesscoach/internal/game"
	"github.com/freeeve/chesscoach/internal/rules"
	"github.com/freeeve/chesscoach/internal/store"
)

// Deps are the components the API serves. Continuous, Backend and Archive
// are optional.
type Deps struct {
	Game        *game.Game
	Coordinator *eval.Coordinator
	Analysis    *eval.Analysis
	Continuous  *eval.Continuous
	Config      *config.Manager
	Backend     *eval.Backend
	Archive     game.Archive
}

// Handler serves the chesscoach API.
type Handler struct {
	d   Deps
	log zerolog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(log zerolog.Logger, d Deps) http.Handler {
	h := &Handler{d: d, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))

	mux.Handle("/v1/game", http.HandlerFunc(h.gameState))
	mux.Handle("/v1/game/move", http.HandlerFunc(h.gameMove))
	mux.Handle("/v1/game/undo", http.HandlerFunc(h.gameUndo))
	mux.Handle("/v1/game/reset", http.HandlerFunc(h.gameReset))
	mux.Handle("/v1/game/fen", http.HandlerFunc(h.gameFEN))
	mux.Handle("/v1/game/pgn", http.HandlerFunc(h.gamePGN))
	mux.Handle("/v1/game/dests", http.HandlerFunc(h.gameDests))
	mux.Handle("/v1/games", http.HandlerFunc(h.games))
	mux.Handle("/v1/games/", http.HandlerFunc(h.archivedGame))

	mux.Handle("/v1/analysis", http.HandlerFunc(h.analysis))
	mux.Handle("/v1/moves", http.HandlerFunc(h.moves))

	mux.Handle("/v1/engine/config", http.HandlerFunc(h.engineConfig))
	mux.Handle("/v1/engine/continuous", http.HandlerFunc(h.continuous))
	mux.Handle("/v1/engine/pool", http.HandlerFunc(h.pool))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CrossOriginIsolation(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ruleError maps rules errors to 400 and everything else to 500.
func ruleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrIllegalMove), errors.Is(err, rules.ErrInvalidFEN), errors.Is(err, rules.ErrInvalidPGN):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// detached returns a context for work that outlives the request.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
