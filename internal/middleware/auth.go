package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"DealRoom/internal/models"
	"DealRoom/internal/services"
)

const (
	viewerKey = "viewer"
	claimsKey = "session"
)

// SessionVerifier checks a session token.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*services.SessionClaims, error)
}

// ProfileLookup loads the current profile for a session.
type ProfileLookup interface {
	Profile(ctx context.Context, id uint) (*models.Profile, error)
}

type Auth struct {
	sessions   SessionVerifier
	profiles   ProfileLookup
	cookieName string
}

func NewAuth(sessions SessionVerifier, profiles ProfileLookup, cookieName string) *Auth {
	return &Auth{sessions: sessions, profiles: profiles, cookieName: cookieName}
}

// tokens returns the session cookie then the bearer token, whichever are set.
func (a *Auth) tokens(c *fiber.Ctx) []string {
	var out []string
	if v := c.Cookies(a.cookieName); v != "" {
		out = append(out, v)
	}
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		if v := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// resolve returns the viewer for the request, nil when anonymous. A stale
// cookie falls through to the bearer token; the first error is reported
// when neither verifies.
func (a *Auth) resolve(c *fiber.Ctx) (*services.Viewer, *services.SessionClaims, error) {
	tokens := a.tokens(c)
	if len(tokens) == 0 {
		return nil, nil, nil
	}
	var claims *services.SessionClaims
	var firstErr error
	for _, token := range tokens {
		got, err := a.sessions.Verify(c.UserContext(), token)
		if err == nil {
			claims = got
			break
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if claims == nil {
		return nil, nil, firstErr
	}
	// Role is read from the profile on every request so changes apply immediately.
	profile, err := a.profiles.Profile(c.UserContext(), claims.UserID)
	if err != nil {
		if services.IsKind(err, services.KindNotFound) {
			return nil, nil, services.Unauthorized("Account no longer exists")
		}
		return nil, nil, err
	}
	viewer, err := services.ViewerFromProfile(profile)
	if err != nil {
		return nil, nil, err
	}
	return viewer, claims, nil
}

// Authenticate rejects requests without a valid session.
func (a *Auth) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, claims, err := a.resolve(c)
		if err != nil {
			return deny(c, err)
		}
		if viewer == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		c.Locals(viewerKey, viewer)
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// OptionalAuth attaches a viewer when a valid session is present and lets
// anonymous requests through.
func (a *Auth) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, claims, err := a.resolve(c)
		if err != nil {
			if services.IsKind(err, services.KindUnauthorized) {
				return c.Next()
			}
			return deny(c, err)
		}
		if viewer != nil {
			c.Locals(viewerKey, viewer)
			c.Locals(claimsKey, claims)
		}
		return c.Next()
	}
}

func deny(c *fiber.Ctx, err error) error {
	switch {
	case services.IsKind(err, services.KindUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case services.IsKind(err, services.KindForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("❌ Session check failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify session"})
}

// RequireRoles allows only the listed roles. It must run after Authenticate.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer := Viewer(c)
		if viewer == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		for _, r := range roles {
			if r.Name() == viewer.Role.Name() {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You do not have access to this resource",
		})
	}
}

// AdminOnly is RequireRoles(models.Admin{}).
func AdminOnly() fiber.Handler {
	return RequireRoles(models.Admin{})
}

// InternalSecret guards service-to-service endpoints with a shared bearer secret.
func InternalSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Internal API is not configured",
			})
		}
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}
		provided := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid internal secret",
			})
		}
		return c.Next()
	}
}

// Viewer returns the authenticated caller or nil.
func Viewer(c *fiber.Ctx) *services.Viewer {
	v, _ := c.Locals(viewerKey).(*services.Viewer)
	return v
}

// Session returns the verified session claims or nil.
func Session(c *fiber.Ctx) *services.SessionClaims {
	s, _ := c.Locals(claimsKey).(*services.SessionClaims)
	return s
}
