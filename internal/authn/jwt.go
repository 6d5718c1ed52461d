// Package authn validates bearer tokens issued by the external identity
// gateway; rate limiting is done separately, in internal/httpx. It never issues
// credentials of its own; GenerateToken exists only to hand back a
// refreshed token on the sliding-window renewal path.
package authn

import (
	"errors"
	"time"

	"histeeria-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService validates and (on renewal) re-signs identity-gateway tokens.
type JWTService struct {
	secretKey []byte
	issuer    string
	expiry    time.Duration
}

// NewJWTService creates a JWT service bound to the gateway's shared secret.
func NewJWTService(secretKey, issuer string, expiry time.Duration) *JWTService {
	return &JWTService{secretKey: []byte(secretKey), issuer: issuer, expiry: expiry}
}

// ValidateToken parses and verifies a bearer token.
func (j *JWTService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ExternalID() == "" {
		return nil, errors.New("token carries no subject")
	}
	return claims, nil
}

// Refresh re-signs a renewed token for a caller whose session is more
// than halfway to expiry, carrying its claims forward unchanged except
// for a fresh iat/exp.
func (j *JWTService) Refresh(claims *models.JWTClaims) (string, error) {
	now := time.Now()
	renewed := *claims
	renewed.IssuedAt = jwt.NewNumericDate(now)
	renewed.ExpiresAt = jwt.NewNumericDate(now.Add(j.expiry))
	if j.issuer != "" {
		renewed.Issuer = j.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &renewed)
	return token.SignedString(j.secretKey)
}
