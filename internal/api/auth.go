package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/auth"
	"github.com/pulse-chat/pulse-server/internal/httputil"
	"github.com/pulse-chat/pulse-server/internal/user"
)

// AuthHandler serves the identity-sync surface. Pulse trusts an external identity provider for credentials; these
// endpoints only upsert the local user row from a bearer token already validated by middleware (auth.RequireValidToken
// in front of Sync, auth.RequireAuth in front of Me) and read it back, rather than issuing or rotating credentials
// themselves.
type AuthHandler struct {
	users user.Repository
	log   zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users user.Repository, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, log: logger}
}

// syncRequest is the JSON body for POST /auth/sync. id echoes the identity provider's subject; it is validated
// against the authenticated principal rather than trusted outright, since the principal's subject is what the row
// is actually persisted under.
type syncRequest struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

type syncResponse struct {
	Success bool     `json:"success"`
	User    userView `json:"user"`
}

// userView is the wire shape for a user row across /auth/sync and /auth/me.
type userView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Image     *string `json:"image,omitempty"`
	CreatedAt string  `json:"createdAt"`
	LastSeen  *string `json:"lastSeen,omitempty"`
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func newUserView(u *user.User) userView {
	v := userView{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.DisplayName,
		Image:     u.ImageURL,
		CreatedAt: u.CreatedAt.Format(rfc3339Milli),
	}
	if u.LastSeenAt != nil {
		seen := u.LastSeenAt.Format(rfc3339Milli)
		v.LastSeen = &seen
	}
	return v
}

// Sync handles POST /auth/sync. It upserts the user row identified by email with the profile the identity provider
// just vouched for, keyed by the authenticated subject rather than the client-supplied id field: the token's
// subject is what every later request's principal.UserID will be parsed from, so it — not anything in the request
// body — must be what ends up in users.id.
func (h *AuthHandler) Sync(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	var body syncRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.FailErr(c, apierr.BadRequest("Invalid request body"))
	}
	if body.Email == "" || body.Name == "" {
		return httputil.FailErr(c, apierr.Validation("email and name are required"))
	}
	if body.ID != "" && body.ID != principal.UserID.String() {
		return httputil.FailErr(c, apierr.BadRequest("id does not match the authenticated subject"))
	}

	u, err := h.users.Sync(c.Context(), user.SyncParams{
		ID: principal.UserID, Email: body.Email, DisplayName: body.Name, ImageURL: body.Image,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "auth").Msg("sync user")
		return httputil.FailErr(c, apierr.Dependency("Failed to sync user", err))
	}

	return httputil.Success(c, syncResponse{Success: true, User: newUserView(u)})
}

// Me handles GET /auth/me, returning the profile of the currently authenticated user.
func (h *AuthHandler) Me(c fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return httputil.FailErr(c, apierr.Unauthenticated("Missing authenticated principal"))
	}

	u, err := h.users.GetByID(c.Context(), principal.UserID)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			return httputil.FailErr(c, apiErr)
		}
		return httputil.FailErr(c, apierr.NotFound("User not found"))
	}

	return httputil.Success(c, newUserView(u))
}
