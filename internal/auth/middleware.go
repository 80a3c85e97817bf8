package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/httputil"
)

// principalLocalsKey is the fiber.Ctx Locals key RequireAuth stores the authenticated Principal under.
const principalLocalsKey = "principal"

// ExistsFunc reports whether id resolves to a persisted user. It closes over whatever repository backs user lookups,
// without this package needing to import one.
type ExistsFunc func(ctx context.Context, id uuid.UUID) (bool, error)

// RequireAuth returns Fiber middleware implementing the full Auth Verifier contract: a JWT Bearer token must carry a
// valid, unexpired signature, AND its subject must resolve to a persisted user via exists. Tokens failing either
// check are rejected as unauthenticated. The resolved Principal is stored in c.Locals("principal") on success.
func RequireAuth(secret, issuer string, exists ExistsFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		principal, err := principalFromHeader(c.Get("Authorization"), secret, issuer)
		if err != nil {
			message := "Invalid or missing credentials"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired"
			}
			return httputil.FailErr(c, apierr.Unauthenticated(message))
		}

		ok, err := exists(c.Context(), principal.UserID)
		if err != nil {
			return httputil.FailErr(c, apierr.Dependency("Failed to verify account", err))
		}
		if !ok {
			return httputil.FailErr(c, apierr.Unauthenticated("Token subject does not resolve to a known account"))
		}

		c.Locals(principalLocalsKey, principal)
		return c.Next()
	}
}

// RequireValidToken returns Fiber middleware that checks only a JWT Bearer token's signature and expiry, without
// requiring its subject to already resolve to a persisted user. The identity-sync endpoint is the one request that
// creates that persisted mapping, so it is guarded by this lighter check rather than RequireAuth.
func RequireValidToken(secret, issuer string) fiber.Handler {
	return func(c fiber.Ctx) error {
		principal, err := principalFromHeader(c.Get("Authorization"), secret, issuer)
		if err != nil {
			message := "Invalid or missing credentials"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired"
			}
			return httputil.FailErr(c, apierr.Unauthenticated(message))
		}
		c.Locals(principalLocalsKey, principal)
		return c.Next()
	}
}

func principalFromHeader(header, secret, issuer string) (*Principal, error) {
	if header == "" {
		return nil, ErrMissingHeader
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrInvalidHeader
	}
	return ValidateToken(strings.TrimPrefix(header, prefix), secret, issuer)
}

// PrincipalFromContext extracts the Principal RequireAuth attached to the request context. The second return value
// is false if no middleware has run, which would indicate a misconfigured route rather than an unauthenticated
// request (RequireAuth always rejects the request before Next if no principal can be resolved).
func PrincipalFromContext(c fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(principalLocalsKey).(*Principal)
	return p, ok
}
