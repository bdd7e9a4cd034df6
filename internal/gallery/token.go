package gallery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenLength is the fixed length of a gallery access token.
const TokenLength = 64

// NewToken returns a cryptographically random token. It is the sole
// access credential for a gallery's client-facing view, so it must be
// unguessable; 32 random bytes hex-encoded gives 256 bits.
func NewToken() (string, error) {
	b := make([]byte, TokenLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate gallery token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
