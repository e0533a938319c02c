package random

import (
	"crypto/rand"
	"math/big"
)

const (
	// SessionIDLength is the length of session ids minted by the fake authority
	SessionIDLength = 12
	// SessionIDAlphabet is the characters used in minted session ids
	SessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(result.Int64())
}

// String generates a random string of the given length from the given alphabet
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	result := make([]byte, length)
	for i := range result {
		result[i] = alphabet[r.intn(len(alphabet))]
	}
	return string(result)
}

// SessionID mints an opaque session id
func SessionID(r Random) string {
	return r.String(SessionIDLength, SessionIDAlphabet)
}
