package entity

// MatchScore - running score of the local participant. It only grows during a match.
type MatchScore struct {
	LocalWins    int `json:"localWins"`
	OpponentWins int `json:"opponentWins"`
	RoundsPlayed int `json:"roundsPlayed"`
}

// Record applies a resolved round seen from the local participant.
func (that *MatchScore) Record(outcome Outcome) {
	switch outcome {
	case OutcomeWin:
		that.LocalWins++
	case OutcomeLoss:
		that.OpponentWins++
	}

	that.RoundsPlayed++
}

func (that *MatchScore) Reset() {
	*that = MatchScore{}
}
