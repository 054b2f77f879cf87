// Package token issues and verifies the access tokens used by the OAuth
// and fulfillment surfaces, and generates the opaque values used for
// refresh tokens and authorization codes.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Claims is the exact payload carried by an access token.
type Claims struct {
	Subject  string `json:"sub"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// ExpiresIn returns the remaining lifetime in whole seconds.
func (c Claims) ExpiresIn(now time.Time) int64 {
	return c.Expiry - now.Unix()
}

// Service signs and verifies access tokens with a single process-wide
// HS256 secret. Verification is pure computation; no storage is touched.
type Service struct {
	secret []byte
	signer gojose.Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a token service around the shared signing secret.
// The secret is stretched to a 256-bit key with SHA-256 so operators are
// not bound to the HS256 minimum key length.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	sum := sha256.Sum256([]byte(secret))
	key := sum[:]
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}
	return &Service{secret: key, signer: signer, ttl: ttl, now: time.Now}, nil
}

// IssueAccessToken signs a token for the user/client/scope triple with an
// absolute expiry exactly one TTL from now.
func (s *Service) IssueAccessToken(userID, clientID, scope string) (string, error) {
	now := s.now()
	claims := Claims{
		Subject:  userID,
		ClientID: clientID,
		Scope:    scope,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(s.ttl).Unix(),
	}
	signed, err := gojwt.Signed(s.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks the signature and expiry. It reports failure
// through the bool return; callers never see parse internals.
func (s *Service) VerifyAccessToken(raw string) (Claims, bool) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return Claims{}, false
	}
	var claims Claims
	if err := parsed.Claims(s.secret, &claims); err != nil {
		return Claims{}, false
	}
	if s.now().Unix() >= claims.Expiry {
		return Claims{}, false
	}
	return claims, true
}

// TTLSeconds is the configured access-token lifetime in seconds, the
// value returned as expires_in on token responses.
func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}

// NewOpaqueToken returns a URL-safe random string with byteLen bytes of
// entropy. Used for refresh tokens, authorization codes, and session ids.
func NewOpaqueToken(byteLen int) string {
	if byteLen <= 0 {
		byteLen = 32
	}
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
