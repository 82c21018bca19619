package pkg

import (
	"crypto/rand"
	"crypto/sha1" //nolint: gosec // RFC 6455 requires SHA-1 for the handshake
	"encoding/base64"

	"github.com/google/uuid"
)

// Static GUID defined in RFC 6455 for WebSocket.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// JoinCodeLength is the size of a private room join code.
const JoinCodeLength = 4

// GenerateAcceptKey - generates key for WebSocket handshake.
func GenerateAcceptKey(key string) string {
	h := sha1.New() //nolint: gosec // see import comment

	h.Write([]byte(key + websocketGUID))

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// GenerateNewSessionID - generates a new unique sessionID.
func GenerateNewSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "error-generating-session-id"
	}

	return base64.RawURLEncoding.EncodeToString(b)
}

// NewRoomID - generates a room identifier. Rooms are never reused, a
// rematch always produces a fresh id.
func NewRoomID() string {
	return uuid.NewString()
}

// NewMatchID - generates a match identifier.
func NewMatchID() string {
	return uuid.NewString()
}

// GenerateJoinCode - generates a short join code for private rooms.
// Collisions are possible and retried by the caller.
func GenerateJoinCode() string {
	b := make([]byte, JoinCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "0000"
	}

	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}

	return string(b)
}
