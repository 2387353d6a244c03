package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the 32-symbol set codes are drawn from. 0, O, I and 1 are
// left out so codes survive being read aloud or typed from paper.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	FriendCodeLength = 8
	SchoolCodeLength = 6
	// MaxAttempts bounds regeneration when a candidate collides.
	MaxAttempts = 100
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a random code of the given length.
func Generate(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Normalize uppercases and trims user input before lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
