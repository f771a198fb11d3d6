// Package auth covers account storage, password hashing and bearer tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 210000
	pbkdf2KeyLen     = 32
	saltBytes        = 16
)

// HashPassword derives a PBKDF2-SHA256 hash encoded as "iterations$salt$hash".
func HashPassword(password string) string {
	salt := randomHex(saltBytes)
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return strconv.Itoa(pbkdf2Iterations) + "$" + salt + "$" + hex.EncodeToString(key)
}

// CheckPassword validates a password against a stored hash.
func CheckPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return false
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(parts[1]), iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "salt"
	}
	return hex.EncodeToString(buf)
}
