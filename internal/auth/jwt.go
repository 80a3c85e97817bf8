package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal is the identity carried by a validated bearer credential.
type Principal struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
}

// accessClaims mirrors the {sub, email, name, exp, iss} shape issued by the external identity provider Pulse trusts.
// Pulse never mints its own access tokens, so there is no NewAccessToken here — only validation.
type accessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// ValidateToken parses and validates an HS256 bearer token, enforcing the signing method and an optional issuer
// check, and returns the principal it identifies.
func ValidateToken(tokenStr, secret, issuer string) (*Principal, error) {
	claims := &accessClaims{}

	var parserOpts []jwt.ParserOption
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSubject
	}

	return &Principal{UserID: userID, Email: claims.Email, DisplayName: claims.Name}, nil
}
