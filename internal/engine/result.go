package engine

// AnalysisResult accumulates the info lines of one search. It is complete once
// the search's bestmove line has been seen.
type AnalysisResult struct {
	BestMove       string   `json:"best_move"`
	Ponder         string   `json:"ponder,omitempty"`
	Evaluation     int      `json:"evaluation"` // centipawns, side to move
	Depth          int      `json:"depth"`
	Nodes          int64    `json:"nodes"`
	NPS            int64    `json:"nps"`
	TimeMS         int      `json:"time_ms"`
	PV             []string `json:"pv"`
	Mate           *int     `json:"mate,omitempty"`
	SelectiveDepth *int     `json:"sel_depth,omitempty"`
	MultiPV        *int     `json:"multipv,omitempty"`
}

// Apply merges one parsed info line into the result. A centipawn score clears
// any earlier mate; a mate score sets Evaluation to ±MateScore
// ("mate 0" means the side to move is mated).
func (r *AnalysisResult) Apply(info Info) {
	if info.Depth != nil {
		r.Depth = *info.Depth
	}
	if info.SelDepth != nil {
		v := *info.SelDepth
		r.SelectiveDepth = &v
	}
	if info.MultiPV != nil {
		v := *info.MultiPV
		r.MultiPV = &v
	}
	if info.CP != nil {
		r.Evaluation = *info.CP
		r.Mate = nil
	}
	if info.Mate != nil {
		v := *info.Mate
		r.Mate = &v
		if v <= 0 {
			r.Evaluation = -MateScore
		} else {
			r.Evaluation = MateScore
		}
	}
	if info.Nodes != nil {
		r.Nodes = *info.Nodes
	}
	if info.NPS != nil {
		r.NPS = *info.NPS
	}
	if info.TimeMS != nil {
		r.TimeMS = *info.TimeMS
	}
	if len(info.PV) > 0 {
		r.PV = append(r.PV[:0:0], info.PV...)
	}
}

// Clone returns a deep copy.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	out.PV = append([]string(nil), r.PV...)
	if r.Mate != nil {
		v := *r.Mate
		out.Mate = &v
	}
	if r.SelectiveDepth != nil {
		v := *r.SelectiveDepth
		out.SelectiveDepth = &v
	}
	if r.MultiPV != nil {
		v := *r.MultiPV
		out.MultiPV = &v
	}
	return out
}
