package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/rps-online/internal/entity"
)

const participantSuffixLength = 9

// GenerateRoomCode - generates a 6 character room code from A-Z and 0-9.
func GenerateRoomCode() string {
	alphabetSize := big.NewInt(int64(len(entity.RoomCodeAlphabet)))

	var code strings.Builder
	for range entity.RoomCodeLength {
		index, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			code.WriteByte(entity.RoomCodeAlphabet[mrand.IntN(len(entity.RoomCodeAlphabet))])
			continue
		}
		code.WriteByte(entity.RoomCodeAlphabet[index.Int64()])
	}

	return code.String()
}

// GenerateParticipantID - generates a process unique participant id: player_<unix ms>_<random>.
func GenerateParticipantID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:participantSuffixLength]

	return fmt.Sprintf("player_%d_%s", now.UnixMilli(), suffix)
}

// GenerateConnectionID - generates an id for a presentation connection.
func GenerateConnectionID() string {
	return uuid.NewString()
}
