package realtime

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hrpulse/hr-notify/internal/domain"
)

// SocketClaims are the claims carried by the short-lived join token a client
// presents when opening a websocket connection.
type SocketClaims struct {
	jwt.RegisteredClaims
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
}

// TokenIssuer signs and verifies websocket join tokens. Tokens are HS256 with
// a short TTL (default 10 minutes): they exist only to carry the already
// authenticated identity from the session layer to the socket handshake.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for the given identity.
func (i *TokenIssuer) Issue(userID string, role domain.Role) (string, error) {
	now := time.Now()
	claims := SocketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "hr-notify",
		},
		UserID: userID,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign socket token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (i *TokenIssuer) Verify(tokenString string) (*SocketClaims, error) {
	claims := &SocketClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse socket token: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid socket token")
	}
	return claims, nil
}
