package narration

import (
	"fmt"

	"github.com/rocketscienceinc/rps-online/internal/entity"
)

const (
	SystemOpponent = "Sistema"
	LocalOpponent  = "Jugador 2"
	OnlineOpponent = "Tu oponente"
)

// InvalidGestureText is shown and spoken when a round could not be resolved.
const InvalidGestureText = "Uno de los jugadores no eligió su movimiento correctamente. " +
	"Por favor, inicia el juego nuevamente mostrando el gesto más claramente."

// StoreErrorText is shown when the host could not write the round to the shared store.
const StoreErrorText = "No se pudo sincronizar la ronda con el otro jugador. Inicia la ronda de nuevo."

// LocalIndeterminateText is used by local rounds when the camera saw no clear gesture.
const LocalIndeterminateText = "No se detectó un gesto claro. Inténtalo de nuevo."

// ResultText - builds the sentence for a round seen from the local participant.
func ResultText(opponent string, outcome entity.Outcome, opponentGesture, localGesture entity.Gesture) string {
	switch outcome {
	case entity.OutcomeWin:
		return fmt.Sprintf("%s eligió %s. Tú elegiste %s. ¡Ganaste esta ronda!",
			opponent, opponentGesture.Name(), localGesture.Name())
	case entity.OutcomeLoss:
		return fmt.Sprintf("%s eligió %s. Tú elegiste %s. %s gana esta ronda.",
			opponent, opponentGesture.Name(), localGesture.Name(), opponent)
	default:
		return fmt.Sprintf("Empate. %s eligió %s. Tú elegiste %s.",
			opponent, opponentGesture.Name(), localGesture.Name())
	}
}

// ErrorText - maps a shared round error tag to its message.
func ErrorText(tag string) string {
	switch tag {
	case entity.RoundErrorInvalidGesture:
		return InvalidGestureText
	case entity.RoundErrorStore:
		return StoreErrorText
	}

	return tag
}
