package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Now()
	token := Sign(42, now.Add(time.Hour), testSecret)

	userID, err := Verify(token, testSecret, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != 42 {
		t.Errorf("user id = %d, want 42", userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	now := time.Now()
	valid := Sign(42, now.Add(time.Hour), testSecret)
	expired := Sign(42, now.Add(-time.Hour), testSecret)

	parts := strings.Split(valid, ".")
	forged := "7." + parts[1] + "." + parts[2]

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr error
	}{
		{"wrong secret", valid, "other-secret", ErrInvalidToken},
		{"tampered user id", forged, testSecret, ErrInvalidToken},
		{"truncated token", parts[0] + "." + parts[1], testSecret, ErrInvalidToken},
		{"garbage", "not-a-token", testSecret, ErrInvalidToken},
		{"empty", "", testSecret, ErrInvalidToken},
		{"expired", expired, testSecret, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.token, tt.secret, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyAtExpiryBoundary(t *testing.T) {
	expiry := time.Unix(time.Now().Unix(), 0)
	token := Sign(1, expiry, testSecret)

	if _, err := Verify(token, testSecret, expiry); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("a token at its exact expiry second must be rejected, got %v", err)
	}
	if _, err := Verify(token, testSecret, expiry.Add(-time.Second)); err != nil {
		t.Errorf("a token one second before expiry must verify, got %v", err)
	}
}
