package entity

// Outcome is always expressed from one participant's point of view.
type Outcome string

const (
	OutcomeWin  Outcome = "Ganaste"
	OutcomeLoss Outcome = "Perdiste"
	OutcomeTie  Outcome = "Empate"
)

// Invert returns the same outcome seen from the other side.
func (that Outcome) Invert() Outcome {
	switch that {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	default:
		return that
	}
}

func (that Outcome) IsValid() bool {
	return that == OutcomeWin || that == OutcomeLoss || that == OutcomeTie
}
