package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// RoleCandidate is the only role the server issues
	RoleCandidate = "candidate"

	defaultTokenTTL = 24 * time.Hour
	minSecretLength = 16
)

// ErrMissingToken is returned when a request carries no token
var ErrMissingToken = errors.New("missing token")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	CandidateID string `json:"candidate_id"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the token signing configuration
type Config struct {
	Secret string
	TTL    time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if len(config.Secret) < minSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters", minSecretLength)
	}
	if config.TTL < 0 {
		return fmt.Errorf("token TTL must be positive, got %s", config.TTL)
	}
	return nil
}

// NewConfigFromEnv reads JWT_SECRET and JWT_TTL (a Go duration)
func NewConfigFromEnv() Config {
	config := Config{Secret: os.Getenv("JWT_SECRET")}
	if ttl, err := time.ParseDuration(os.Getenv("JWT_TTL")); err == nil {
		config.TTL = ttl
	}
	return config
}

// Issuer signs and validates HS256 candidate tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates a new token issuer
func NewIssuer(config Config) (*Issuer, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.TTL == 0 {
		config.TTL = defaultTokenTTL
	}
	return &Issuer{secret: []byte(config.Secret), ttl: config.TTL}, nil
}

// GenerateCandidateToken generates a token for a candidate. An empty
// candidateID gets a fresh one.
func (i *Issuer) GenerateCandidateToken(candidateID string) (string, *JWTClaims, error) {
	if candidateID == "" {
		candidateID = uuid.NewString()
	}
	now := time.Now()
	claims := &JWTClaims{
		CandidateID: candidateID,
		Role:        RoleCandidate,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   candidateID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.CandidateID == "" || claims.Role != RoleCandidate {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
