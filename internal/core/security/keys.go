package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const tokenPrefix = "lop_"

// GenerateToken creates a random operator token and the SHA256 hash that
// the server compares requests against.
//
// Example:
//
//	token, hash, err := GenerateToken()
//	// token: "lop_3f9c..." (hand to the operator)
//	// hash:  "b94d27b9..." (safe to log or store)
func GenerateToken() (string, string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token := tokenPrefix + hex.EncodeToString(bytes)
	return token, HashToken(token), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateToken reports whether provided hashes to storedHash. The
// comparison runs in constant time.
func ValidateToken(provided, storedHash string) bool {
	if provided == "" || storedHash == "" {
		return false
	}
	computed := HashToken(provided)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
