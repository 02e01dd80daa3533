package relay

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "stage-manager/relay"

var ErrUnauthorized = errors.New("authentication required")

// Claims identify a relay user. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Elevated bool `json:"elevated"`
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret, userID string, elevated bool, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Elevated: elevated,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token issued by IssueToken.
func ParseToken(secret, raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (s *Server) authenticate(c *gin.Context) (*Claims, error) {
	raw := c.Query("token")
	if header := c.GetHeader("Authorization"); raw == "" && strings.HasPrefix(header, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if raw == "" {
		return nil, ErrUnauthorized
	}
	claims, err := ParseToken(s.cfg.RelayJWTSecret, raw)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return claims, nil
}
