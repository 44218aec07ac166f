package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123"

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, claims, err := issuer.GenerateCandidateToken("candidate-1")
	if err != nil {
		t.Fatalf("GenerateCandidateToken: %v", err)
	}
	if claims.CandidateID != "candidate-1" {
		t.Errorf("Expected candidate-1, got %s", claims.CandidateID)
	}

	validated, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if validated.CandidateID != "candidate-1" || validated.Role != RoleCandidate {
		t.Errorf("Unexpected claims %+v", validated)
	}
}

func TestIssuer_GeneratesCandidateID(t *testing.T) {
	issuer, _ := NewIssuer(Config{Secret: testSecret})
	_, first, _ := issuer.GenerateCandidateToken("")
	_, second, _ := issuer.GenerateCandidateToken("")
	if first.CandidateID == "" || first.CandidateID == second.CandidateID {
		t.Errorf("Expected distinct generated IDs, got %q and %q", first.CandidateID, second.CandidateID)
	}
}

func TestIssuer_Rejections(t *testing.T) {
	issuer, _ := NewIssuer(Config{Secret: testSecret})
	other, _ := NewIssuer(Config{Secret: "another-secret-value"})

	foreign, _, _ := other.GenerateCandidateToken("c")
	stale, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		CandidateID: "c",
		Role:        RoleCandidate,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{CandidateID: "c", Role: RoleCandidate})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: stale},
		{name: "alg none", token: unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.ValidateToken(tt.token); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := issuer.ValidateToken(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := NewIssuer(Config{Secret: "short"}); err == nil {
		t.Error("Expected an error for a short secret")
	}
	if err := ValidateConfig(Config{Secret: testSecret, TTL: -time.Second}); err == nil {
		t.Error("Expected an error for a negative TTL")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, expected := range tests {
		if got := BearerToken(header); got != expected {
			t.Errorf("BearerToken(%q): expected %q, got %q", header, expected, got)
		}
	}
}
