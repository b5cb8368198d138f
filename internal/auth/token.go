package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Handshake tokens are issued by the external auth service and verified
// here with a shared secret. Format: "<user id>.<unix expiry>.<hmac>",
// where hmac = SHA-256 HMAC over "<user id>.<unix expiry>".

var (
	ErrInvalidToken = errors.New("invalid handshake token")
	ErrExpiredToken = errors.New("handshake token expired")
)

// Sign produces a handshake token. The server only verifies tokens in
// production; signing lives here for the seeder, the bot driver and tests.
func Sign(userID uint, expiresAt time.Time, secret string) string {
	payload := fmt.Sprintf("%d.%d", userID, expiresAt.Unix())
	return payload + "." + computeMAC(payload, secret)
}

// Verify checks signature and expiry and returns the authenticated user id.
func Verify(token, secret string, now time.Time) (uint, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	expected := computeMAC(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return 0, ErrInvalidToken
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if now.Unix() >= expiry {
		return 0, ErrExpiredToken
	}

	userID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}

func computeMAC(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
