package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Supported code lengths. Four digits matches what riders are used to; six is
// the ceiling before codes stop being readable over a car window.
const (
	MinLength = 4
	MaxLength = 6
)

// Issue generates a numeric code of the given length from crypto/rand, zero
// padded. Lengths outside [MinLength, MaxLength] are clamped.
func Issue(length int) (string, error) {
	if length < MinLength {
		length = MinLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// Verify compares the bound code against a presented one: exact string
// equality after trimming surrounding whitespace. No fuzzy matching.
func Verify(bound, presented string) bool {
	return bound != "" && bound == strings.TrimSpace(presented)
}
