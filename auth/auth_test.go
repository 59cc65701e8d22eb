package auth

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		byteLen int
		wantLen int
	}{
		{"16 bytes", 16, 32},
		{"12 bytes", 12, 24},
		{"24 bytes", 24, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GenerateID(tt.byteLen)
			if err != nil {
				t.Fatalf("GenerateID failed: %v", err)
			}
			if len(id) != tt.wantLen {
				t.Errorf("Expected length %d, got %d", tt.wantLen, len(id))
			}
		})
	}

	// Two calls must not collide
	a, _ := GenerateID(16)
	b, _ := GenerateID(16)
	if a == b {
		t.Error("GenerateID returned identical values")
	}
}

func TestDriverKeyRoundTrip(t *testing.T) {
	const salt = "test-driver-salt"

	roundID, _ := GenerateID(16)
	key := GenerateDriverKey(roundID, salt)

	if key == "" {
		t.Fatal("Expected non-empty driver key")
	}
	if strings.ContainsAny(key, "=+/") {
		t.Errorf("Driver key should be URL-safe without padding, got %q", key)
	}

	if err := ValidateDriverKey(roundID, key, salt); err != nil {
		t.Errorf("Valid key rejected: %v", err)
	}
	if err := ValidateDriverKey(roundID, key, "other-salt"); err != ErrInvalidDriverKey {
		t.Errorf("Expected ErrInvalidDriverKey for wrong salt, got %v", err)
	}
	if err := ValidateDriverKey(roundID, "bogus", salt); err != ErrInvalidDriverKey {
		t.Errorf("Expected ErrInvalidDriverKey for bogus key, got %v", err)
	}

	otherRound, _ := GenerateID(16)
	if err := ValidateDriverKey(otherRound, key, salt); err != ErrInvalidDriverKey {
		t.Errorf("Key for one round must not validate for another, got %v", err)
	}
}

func TestGenerateViewerToken(t *testing.T) {
	token, err := GenerateViewerToken()
	if err != nil {
		t.Fatalf("GenerateViewerToken failed: %v", err)
	}
	if len(token) < 30 {
		t.Errorf("Token too short: %d chars", len(token))
	}
	if strings.ContainsAny(token, "=+/") {
		t.Errorf("Token should be URL-safe without padding, got %q", token)
	}

	other, _ := GenerateViewerToken()
	if token == other {
		t.Error("GenerateViewerToken returned identical values")
	}
}

func TestCSRFTokenRoundTrip(t *testing.T) {
	const salt = "test-csrf-salt"

	viewerToken, _ := GenerateViewerToken()
	csrf := GenerateCSRFToken(viewerToken, salt)

	if csrf == "" {
		t.Fatal("Expected non-empty CSRF token")
	}
	if csrf == GenerateCSRFToken(viewerToken, "other-salt") {
		t.Error("CSRF token must depend on the salt")
	}

	if err := ValidateCSRFToken(viewerToken, csrf, salt); err != nil {
		t.Errorf("Valid CSRF token rejected: %v", err)
	}
	if err := ValidateCSRFToken(viewerToken, "bogus", salt); err != ErrInvalidCSRFToken {
		t.Errorf("Expected ErrInvalidCSRFToken, got %v", err)
	}

	otherViewer, _ := GenerateViewerToken()
	if err := ValidateCSRFToken(otherViewer, csrf, salt); err != ErrInvalidCSRFToken {
		t.Errorf("CSRF token for one viewer must not validate for another, got %v", err)
	}
}

func TestHashIP(t *testing.T) {
	const salt = "test-salt"

	h1 := HashIP("192.168.1.1", salt)
	h2 := HashIP("192.168.1.1", salt)
	h3 := HashIP("192.168.1.2", salt)

	if h1 != h2 {
		t.Error("Same IP should produce same hash")
	}
	if h1 == h3 {
		t.Error("Different IPs should produce different hashes")
	}
	if len(h1) != 16 {
		t.Errorf("Expected 16 hex chars, got %d", len(h1))
	}
	if HashIP("192.168.1.1", "other") == h1 {
		t.Error("Hash must depend on the salt")
	}
}
