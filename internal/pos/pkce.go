package pos

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
)

// Characters allowed in a PKCE code verifier (RFC 7636 unreserved set).
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const verifierLength = 64

// GenerateVerifier returns a random PKCE code verifier.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierLength)
	max := big.NewInt(int64(len(verifierAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = verifierAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Challenge computes the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
