// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDriverKey = errors.New("invalid driver key")
	ErrInvalidCSRFToken = errors.New("invalid csrf token")
)

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateDriverKey creates an HMAC-based driver key for a round
// This is deterministic and verifiable
func GenerateDriverKey(roundID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(roundID))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateDriverKey checks if the provided driver key is valid for the round
func ValidateDriverKey(roundID, driverKey, salt string) error {
	expected := GenerateDriverKey(roundID, salt)
	if !hmac.Equal([]byte(driverKey), []byte(expected)) {
		return ErrInvalidDriverKey
	}
	return nil
}

// GenerateViewerToken creates a random secure token for a participant.
// It identifies the viewer across vote submissions and reconnects.
func GenerateViewerToken() (string, error) {
	b := make([]byte, 24) // 24 bytes = 192 bits of entropy
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate viewer token: %w", err)
	}
	// URL-safe base64 without padding
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// GenerateCSRFToken derives the CSRF token for a viewer token.
// Deterministic so it can be re-verified without storage.
func GenerateCSRFToken(viewerToken, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte("csrf:"))
	h.Write([]byte(viewerToken))
	sum := h.Sum(nil)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateCSRFToken checks a CSRF token against the viewer token it was
// issued for, in constant time.
func ValidateCSRFToken(viewerToken, csrfToken, salt string) error {
	expected := GenerateCSRFToken(viewerToken, salt)
	if !hmac.Equal([]byte(csrfToken), []byte(expected)) {
		return ErrInvalidCSRFToken
	}
	return nil
}

// HashIP creates a one-way hash of an IP address for privacy
// Includes salt to prevent rainbow table attacks
func HashIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	// Return first 16 hex chars (64 bits) - enough for deduplication
	return hex.EncodeToString(sum[:8])
}
