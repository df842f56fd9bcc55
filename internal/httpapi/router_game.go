package httpapi

import (
	"net/http"
	"strings"
)

func (h *Handler) gameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, h.d.Game.State())
}

func (h *Handler) gameMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var body struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Promotion string `json:"promotion"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	mv, err := h.d.Game.Move(body.From, body.To, body.Promotion)
	if err != nil {
		ruleError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"move":  mv,
		"state": h.d.Game.State(),
	})
}

func (h *Handler) gameUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := h.d.Game.Undo(); !ok {
		writeError(w, http.StatusConflict, "no move to undo")
		return
	}
	writeJSON(w, h.d.Game.State())
}

func (h *Handler) gameReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.d.Game.Reset()
	writeJSON(w, h.d.Game.State())
}

func (h *Handler) gameFEN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var body struct {
		FEN string `json:"fen"`
	}
	if err := decodeJSON(r, &body); err != nil || body.FEN == "" {
		writeError(w, http.StatusBadRequest, "missing fen")
		return
	}
	if err := h.d.Game.LoadFEN(body.FEN); err != nil {
		ruleError(w, err)
		return
	}
	writeJSON(w, h.d.Game.State())
}

func (h *Handler) gamePGN(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]string{"pgn": h.d.Game.PGN()})
	case http.MethodPost:
		var body struct {
			PGN string `json:"pgn"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := h.d.Game.LoadPGN(body.PGN); err != nil {
			ruleError(w, err)
			return
		}
		writeJSON(w, h.d.Game.State())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) gameDests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, h.d.Game.Dests())
}

// games lists archived games (GET) or archives the current one (POST).
func (h *Handler) games(w http.ResponseWriter, r *http.Request) {
	if h.d.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "game archive not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		ids, err := h.d.Archive.ListGames()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, map[string]any{"games": ids})
	case http.MethodPost:
		var body struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		id, err := h.d.Game.Save(h.d.Archive, body.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// archivedGame returns (GET) or restores (POST) /v1/games/{id}.
func (h *Handler) archivedGame(w http.ResponseWriter, r *http.Request) {
	if h.d.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "game archive not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/games/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing game id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		pgn, err := h.d.Archive.LoadGame(id)
		if err != nil {
			ruleError(w, err)
			return
		}
		writeJSON(w, map[string]string{"id": id, "pgn": pgn})
	case http.MethodPost:
		if err := h.d.Game.Restore(h.d.Archive, id); err != nil {
			ruleError(w, err)
			return
		}
		writeJSON(w, h.d.Game.State())
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}
