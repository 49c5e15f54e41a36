package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// Claims is the JWT payload issued at login. Role codes are recorded for
// diagnostics only; authorization re-reads membership from storage.
type Claims struct {
	UserID    int64    `json:"uid"`
	Username  string   `json:"username,omitempty"`
	RoleCodes []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec constructs a TokenCodec.
func NewTokenCodec(secret, issuer string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for the user with the given role codes.
func (c *TokenCodec) Issue(userID int64, username string, roleCodes []string) (string, *Claims, error) {
	now := c.now().UTC()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		RoleCodes: roleCodes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    c.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies a token string and returns its claims. Any parse or
// validation failure surfaces as an authentication error.
func (c *TokenCodec) Parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: parse token: %w", httpx.ErrUnauthorized)
	}
	return &claims, nil
}
