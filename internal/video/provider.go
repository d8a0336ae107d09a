// Package video issues per-player access credentials for the external
// video-session service.
package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cory-johannsen/town/internal/config"
)

// Provider issues an opaque video credential for a player in a town.
//
// Postcondition: Returns a non-empty token or a non-nil error.
type Provider interface {
	Token(ctx context.Context, townID, playerID string) (string, error)
}

// contentType marks the token as a video access token for the service.
const contentType = "twilio-fpa;v=1"

// ErrNotConfigured is returned when the provider lacks credentials.
var ErrNotConfigured = errors.New("video provider is not configured")

// VideoGrant scopes a token to one room.
type VideoGrant struct {
	Room string `json:"room"`
}

// Grants carries the identity and service grants of a token.
type Grants struct {
	Identity string     `json:"identity"`
	Video    VideoGrant `json:"video"`
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Grants Grants `json:"grants"`
}

// JWTProvider mints HS256-signed access tokens locally from API key material.
type JWTProvider struct {
	accountSID string
	apiKeySID  string
	secret     []byte
	ttl        time.Duration
	// Now returns the current time; tests may replace it.
	Now func() time.Time
}

// NewJWTProvider creates a JWTProvider from cfg.
//
// Precondition: cfg must have passed config validation.
// Postcondition: Returns a ready provider, or ErrNotConfigured when key material is missing.
func NewJWTProvider(cfg config.VideoConfig) (*JWTProvider, error) {
	if cfg.AccountSID == "" || cfg.APIKeySID == "" || cfg.APIKeySecret == "" {
		return nil, ErrNotConfigured
	}
	return &JWTProvider{
		accountSID: cfg.AccountSID,
		apiKeySID:  cfg.APIKeySID,
		secret:     []byte(cfg.APIKeySecret),
		ttl:        cfg.TokenTTL,
		Now:        time.Now,
	}, nil
}

// Token implements Provider. The token grants playerID access to the room
// named after townID.
func (p *JWTProvider) Token(ctx context.Context, townID, playerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if townID == "" || playerID == "" {
		return "", fmt.Errorf("video token: town and player ids must not be empty")
	}

	now := p.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%s", p.apiKeySID, uuid.NewString()),
			Issuer:    p.apiKeySID,
			Subject:   p.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Grants: Grants{
			Identity: playerID,
			Video:    VideoGrant{Room: townID},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = contentType
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("signing video token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token minted by p and returns its claims.
func (p *JWTProvider) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing video token: %w", err)
	}
	return &claims, nil
}
