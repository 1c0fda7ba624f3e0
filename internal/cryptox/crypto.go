// Package cryptox implements password hashing for stored credentials.
package cryptox

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/difychat/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of per-account salts in bytes.
const SaltSize = 32

// argon2id parameters: 1 pass, 64 MiB, 4 lanes, 32-byte key.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// NewSalt returns a fresh random salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPassword derives the argon2id hash of password with salt.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword recomputes the hash of candidate and compares it to hash
// in constant time.
func VerifyPassword(hash, salt []byte, candidate string) bool {
	computed := HashPassword(candidate, salt)
	defer common.WipeByteArray(computed)
	return subtle.ConstantTimeCompare(hash, computed) == 1
}
