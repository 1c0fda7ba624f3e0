package common

import (
	"crypto/rand"
	"encoding/hex"
	"unicode/utf8"
)

// MakeRandHexString returns a hex string built from size random bytes.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	// crypto/rand.Read never returns an error since Go 1.24
	_, _ = rand.Read(b)
	return b
}

// WipeByteArray zeroes b in place. A nil slice is left alone.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// TruncateRunes returns the first n runes of s and whether anything was cut.
func TruncateRunes(s string, n int) (string, bool) {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}
