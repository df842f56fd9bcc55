package rules

// MoveLister enumerates legal moves from one square of a position.
type MoveLister interface {
	MovesFrom(fen, square string) ([]MoveInfo, error)
}

// Standard is the MoveLister backed by Board.
type Standard struct{}

// MovesFrom loads fen and lists the legal moves leaving square.
func (Standard) MovesFrom(fen, square string) ([]MoveInfo, error) {
	b, err := NewBoard(fen)
	if err != nil {
		return nil, err
	}
	return b.LegalMoves(Filter{Square: square})
}
