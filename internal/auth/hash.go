// Package auth loads DJ and operator credential records and verifies
// presented keys against stored hashes.
//
// Stored hashes carry an algorithm prefix: "bcrypt:$2a$..." or
// "sha256:<salt>:<hexdigest>". Any record without a recognized prefix is
// treated as a plaintext secret, which is a fatal configuration error
// when authentication is required.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hash method names accepted by [HashPassword].
const (
	MethodAuto   = "auto"
	MethodBcrypt = "bcrypt"
	MethodSHA256 = "sha256"
)

const bcryptCost = 12

// HashPassword hashes password with the given method and returns the
// prefixed hash string. MethodAuto selects bcrypt.
func HashPassword(password, method string) (string, error) {
	if method == MethodAuto {
		method = MethodBcrypt
	}
	switch method {
	case MethodBcrypt:
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return "", fmt.Errorf("auth: bcrypt: %w", err)
		}
		return "bcrypt:" + string(h), nil

	case MethodSHA256:
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("auth: salt: %w", err)
		}
		saltHex := hex.EncodeToString(salt)
		sum := sha256.Sum256([]byte(saltHex + ":" + password))
		return "sha256:" + saltHex + ":" + hex.EncodeToString(sum[:]), nil

	default:
		return "", fmt.Errorf("auth: unknown hashing method %q", method)
	}
}

// VerifyPassword reports whether password matches the stored prefixed
// hash. Hashes without a recognized prefix never match.
func VerifyPassword(password, stored string) bool {
	switch {
	case stored == "":
		return false

	case strings.HasPrefix(stored, "bcrypt:"):
		err := bcrypt.CompareHashAndPassword([]byte(stored[len("bcrypt:"):]), []byte(password))
		return err == nil

	case strings.HasPrefix(stored, "sha256:"):
		parts := strings.Split(stored, ":")
		if len(parts) != 3 {
			return false
		}
		sum := sha256.Sum256([]byte(parts[1] + ":" + password))
		computed := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(parts[2])) == 1

	default:
		// Plaintext entries are rejected outright; they must be rehashed
		// with the mcavkeys utility.
		return false
	}
}

// HashedSecret reports whether stored carries a recognized hash prefix.
func HashedSecret(stored string) bool {
	return strings.HasPrefix(stored, "bcrypt:") || strings.HasPrefix(stored, "sha256:")
}

// GenerateAPIKey returns a cryptographically random URL-safe key.
func GenerateAPIKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("auth: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
