package eval

// Score is an evaluation in centipawns, or a signed mate count when Mate is set.
type Score struct {
	Evaluation int  `json:"evaluation"`
	Mate       *int `json:"mate,omitempty"`
}

// ToPlayerPerspective orients an engine score for the player to move in the
// position the search was requested for. With a mate the signed mate count
// replaces the evaluation. The branch depends only on whether Mate is set.
// Apply it exactly once per raw score.
func ToPlayerPerspective(raw Score, whiteToMove bool) Score {
	if raw.Mate != nil {
		m := *raw.Mate
		if !whiteToMove {
			m = -m
		}
		return Score{Evaluation: m, Mate: &m}
	}
	e := raw.Evaluation
	if !whiteToMove {
		e = -e
	}
	return Score{Evaluation: e}
}
