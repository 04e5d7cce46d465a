package accesscode

import (
	"crypto/rand"
	"fmt"
)

// tokenAlphabet avoids lookalike characters (I/L/O/0/1) so codes survive
// being read aloud or retyped from a screenshot.
const tokenAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const tokenLength = 8

// newToken draws a fixed-length code from crypto/rand. Codes are bearer
// credentials, so math/rand is not acceptable here.
func newToken() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	out := make([]byte, tokenLength)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out), nil
}
