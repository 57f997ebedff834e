package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Token builds the viewer token for a user:
//
//	userId:hex(sha256(userId || sha256(apiKey)))
//
// The query form exists because browser EventSource cannot set headers.
func Token(userID, apiKey string) string {
	return userID + ":" + signature(userID, apiKey)
}

// signature computes the hex-encoded user signature half of the token.
func signature(userID, apiKey string) string {
	keyHash := sha256.Sum256([]byte(apiKey))

	h := sha256.New()
	h.Write([]byte(userID))
	h.Write(keyHash[:])
	return hex.EncodeToString(h.Sum(nil))
}

// verifyToken validates a presented token against the API key and returns
// the authenticated user id. Comparison is constant-time.
func verifyToken(token, apiKey string) (string, bool) {
	userID, sig, ok := strings.Cut(token, ":")
	if !ok || userID == "" {
		return "", false
	}

	want := signature(userID, apiKey)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		return "", false
	}
	return userID, true
}
