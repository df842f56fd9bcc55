package httpapi

import (
	"errors"
	"net/http"

	"github.com/freeeve/chesscoach/internal/config"
	"github.com/freeeve/chesscoach/internal/eval"
	"github.com/freeeve/chesscoach/internal/rules"
)

// positionOrGame validates fen, defaulting to the current game position.
func (h *Handler) positionOrGame(fen string) (string, error) {
	if fen == "" {
		return h.d.Game.FEN(), nil
	}
	b, err := rules.NewBoard(fen)
	if err != nil {
		return "", err
	}
	return b.FEN(), nil
}

// analysis starts (POST), reads (GET) or stops (DELETE) the position analysis.
func (h *Handler) analysis(w http.ResponseWriter, r *http.Request) {
	if h.d.Analysis == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.d.Analysis.State())
	case http.MethodPost:
		var body struct {
			FEN string `json:"fen"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		fen, err := h.positionOrGame(body.FEN)
		if err != nil {
			ruleError(w, err)
			return
		}
		h.d.Analysis.Begin(detached(r), fen)
		writeJSONStatus(w, http.StatusAccepted, h.d.Analysis.State())
	case http.MethodDelete:
		h.d.Analysis.Stop()
		writeJSON(w, h.d.Analysis.State())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// moves evaluates every move from a square (POST), reads the evaluations
// (GET) or clears them (DELETE).
func (h *Handler) moves(w http.ResponseWriter, r *http.Request) {
	if h.d.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "move evaluation not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.d.Coordinator.Snapshot())
	case http.MethodPost:
		var body struct {
			FEN    string `json:"fen"`
			Square string `json:"square"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, err := rules.ParseSquare(body.Square); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fen, err := h.positionOrGame(body.FEN)
		if err != nil {
			ruleError(w, err)
			return
		}
		if err := h.d.Coordinator.Begin(fen, body.Square); err != nil {
			ruleError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, h.d.Coordinator.Snapshot())
	case http.MethodDelete:
		h.d.Coordinator.Clear()
		writeJSON(w, h.d.Coordinator.Snapshot())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// configPatch holds the fields a PUT may change; absent fields keep their value.
type configPatch struct {
	Depth            *int  `json:"depth"`
	MoveTime         *int  `json:"move_time"`
	Threads          *int  `json:"threads"`
	Hash             *int  `json:"hash"`
	MultiPV          *int  `json:"multipv"`
	ParallelMoveEval *bool `json:"parallel_move_eval"`
	Reset            bool  `json:"reset"`
}

func (p configPatch) apply(cfg config.EngineConfig) config.EngineConfig {
	if p.Depth != nil {
		cfg.Depth = *p.Depth
	}
	if p.MoveTime != nil {
		cfg.MoveTime = *p.MoveTime
	}
	if p.Threads != nil {
		cfg.Threads = *p.Threads
	}
	if p.Hash != nil {
		cfg.Hash = *p.Hash
	}
	if p.MultiPV != nil {
		cfg.MultiPV = *p.MultiPV
	}
	if p.ParallelMoveEval != nil {
		cfg.ParallelMoveEval = *p.ParallelMoveEval
	}
	return cfg
}

func (h *Handler) engineConfig(w http.ResponseWriter, r *http.Request) {
	if h.d.Config == nil {
		writeError(w, http.StatusServiceUnavailable, "config not available")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.d.Config.Get())
	case http.MethodPut:
		var patch configPatch
		if err := decodeJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		var err error
		if patch.Reset {
			err = h.d.Config.Reset()
		} else {
			err = h.d.Config.Apply(patch.apply(h.d.Config.Get()))
		}
		if errors.Is(err, config.ErrOutOfRange) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.log.Info().Interface("config", h.d.Config.Get()).Msg("engine config updated via API")
		writeJSON(w, h.d.Config.Get())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (h *Handler) continuousState() map[string]any {
	c := h.d.Continuous
	return map[string]any{
		"enabled": c.Enabled(),
		"running": c.Running(),
		"last":    c.Last(),
	}
}

// continuous reads (GET) or switches (PUT) continuous analysis. Enabling it
// starts a search on the current game position.
func (h *Handler) continuous(w http.ResponseWriter, r *http.Request) {
	if h.d.Continuous == nil {
		writeError(w, http.StatusServiceUnavailable, "continuous analysis not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.continuousState())
	case http.MethodPut:
		var body struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeJSON(r, &body); err != nil || body.Enabled == nil {
			writeError(w, http.StatusBadRequest, "missing enabled")
			return
		}
		if err := h.d.Continuous.SetEnabled(*body.Enabled); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if *body.Enabled {
			if err := h.d.Continuous.Start(h.d.Game.FEN()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, h.continuousState())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (h *Handler) pool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	var p *eval.Pool
	if h.d.Backend != nil {
		p, _ = h.d.Backend.Current().(*eval.Pool)
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "parallel move evaluation disabled")
		return
	}
	writeJSON(w, p.Status())
}
