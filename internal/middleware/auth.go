package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/session"
)

// Session keys written by the login callback.
const (
	SessionSubject = "user_sub"
	SessionEmail   = "user_email"
	SessionName    = "user_name"
)

const identityKey = "identity"

// Identity is the authenticated caller. Reports are owned by Email.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Admin   bool   `json:"admin"`
}

// Owner returns the value recorded as the owner of the caller's reports.
func (i *Identity) Owner() string {
	if i == nil {
		return ""
	}
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// TokenVerifier validates a raw bearer token and returns its identity.
type TokenVerifier func(ctx context.Context, rawToken string) (*Identity, error)

// OIDCVerifier adapts a go-oidc ID token verifier.
func OIDCVerifier(v *oidc.IDTokenVerifier) TokenVerifier {
	return func(ctx context.Context, raw string) (*Identity, error) {
		tok, err := v.Verify(ctx, raw)
		if err != nil {
			return nil, err
		}
		var claims struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := tok.Claims(&claims); err != nil {
			return nil, err
		}
		return &Identity{Subject: tok.Subject, Email: strings.ToLower(claims.Email), Name: claims.Name}, nil
	}
}

var errNoCredentials = errors.New("no credentials")

// AuthMiddleware resolves the caller from the session cookie or an
// Authorization bearer token.
type AuthMiddleware struct {
	verify  TokenVerifier
	isAdmin func(email string) bool
	open    bool
}

// NewAuthMiddleware creates the middleware. A nil verify together with
// open=true lets every request through as an anonymous administrator; this
// is the single-user mode used when no identity provider is configured.
func NewAuthMiddleware(verify TokenVerifier, isAdmin func(string) bool, open bool) *AuthMiddleware {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &AuthMiddleware{verify: verify, isAdmin: isAdmin, open: open}
}

// RequireAuth rejects requests without a valid identity with 401.
func (m *AuthMiddleware) RequireAuth(c fiber.Ctx) error {
	if m.open {
		c.Locals(identityKey, &Identity{Subject: "anonymous", Admin: true})
		return c.Next()
	}

	id, err := m.resolve(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "authentication required",
		})
	}
	c.Locals(identityKey, id)
	return c.Next()
}

// OptionalAuth loads the identity if present but never rejects.
func (m *AuthMiddleware) OptionalAuth(c fiber.Ctx) error {
	if id, err := m.resolve(c); err == nil {
		c.Locals(identityKey, id)
	}
	return c.Next()
}

func (m *AuthMiddleware) resolve(c fiber.Ctx) (*Identity, error) {
	if sess := session.FromContext(c); sess != nil {
		if sub, ok := sess.Get(SessionSubject).(string); ok && sub != "" {
			email, _ := sess.Get(SessionEmail).(string)
			name, _ := sess.Get(SessionName).(string)
			return m.withRole(&Identity{Subject: sub, Email: email, Name: name}), nil
		}
	}

	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" || m.verify == nil {
		return nil, errNoCredentials
	}
	id, err := m.verify(c.Context(), token)
	if err != nil {
		return nil, err
	}
	return m.withRole(id), nil
}

func (m *AuthMiddleware) withRole(id *Identity) *Identity {
	id.Admin = id.Email != "" && m.isAdmin(id.Email)
	return id
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IdentityFrom returns the identity stored by the middleware, or nil.
func IdentityFrom(c fiber.Ctx) *Identity {
	id, _ := c.Locals(identityKey).(*Identity)
	return id
}
