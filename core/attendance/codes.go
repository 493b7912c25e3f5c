package attendance

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

const (
	shortCodeMin = 100000
	shortCodeMax = 999999
)

var (
	NewShortCodeFunc    = NewShortCode    // mockable
	NewSessionTokenFunc = NewSessionToken // mockable

	shortCodeSpan = big.NewInt(shortCodeMax - shortCodeMin + 1)
)

// NewShortCode draws a uniformly random 6-digit code in [100000, 999999].
func NewShortCode() (string, error) {
	n, err := rand.Int(rand.Reader, shortCodeSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+shortCodeMin, 10), nil
}

// NewSessionToken returns an opaque random (v4) UUID.
func NewSessionToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
