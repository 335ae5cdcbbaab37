// pkg/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"asset-cache/config"
	"asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const authRealm = `Basic realm="asset-cache"`

type AuthMiddleware struct {
	config *config.Config
	log    *utils.Logger
}

func NewAuthMiddleware(config *config.Config, log *utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: config,
		log:    log,
	}
}

// Authenticate lets anonymous reads through. Writes need basic credentials
// matching a configured user; a read that does send credentials gets them
// checked too.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.handler(true)
}

// Require checks credentials on every method, reads included
func (m *AuthMiddleware) Require() fiber.Handler {
	return m.handler(false)
}

// Fetch guards routes that make the server contact an upstream URL. They
// stay authenticated unless server.anonymousFetch is set.
func (m *AuthMiddleware) Fetch() fiber.Handler {
	if m.config.Server.AnonymousFetch {
		return m.Authenticate()
	}
	return m.Require()
}

func (m *AuthMiddleware) handler(anonymousReads bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)

		method := c.Method()
		if anonymousReads && (method == fiber.MethodGet || method == fiber.MethodHead) && auth == "" {
			m.log.WithFunc().Debug("Anonymous read access allowed")
			return c.Next()
		}

		if auth == "" {
			m.log.WithFunc().WithField("path", c.Path()).Warn("No authorization header")
			c.Set(fiber.HeaderWWWAuthenticate, authRealm)
			return unauthorized(c, "authentication required")
		}

		// "Basic base64(username:password)"
		if !strings.HasPrefix(auth, "Basic ") {
			m.log.WithFunc().Warn("Invalid auth format")
			c.Set(fiber.HeaderWWWAuthenticate, authRealm)
			return unauthorized(c, "invalid authentication format")
		}

		credentials, err := base64.StdEncoding.DecodeString(auth[len("Basic "):])
		if err != nil {
			m.log.WithFunc().WithError(err).Warn("Failed to decode credentials")
			return unauthorized(c, "invalid credentials format")
		}

		username, password, ok := strings.Cut(string(credentials), ":")
		if !ok {
			m.log.WithFunc().Warn("Invalid credentials format")
			return unauthorized(c, "invalid credentials format")
		}

		m.log.WithFunc().WithField("total_users", len(m.config.Auth.Users)).Debug("Checking authentication")

		if m.valid(username, password) {
			m.log.WithFunc().WithField("username", username).Debug("User authenticated")
			c.Locals("username", username)
			return c.Next()
		}

		m.log.WithFunc().WithFields(logrus.Fields{
			"username": username,
			"path":     c.Path(),
		}).Warn("Authentication failed")
		return unauthorized(c, "invalid username or password")
	}
}

func (m *AuthMiddleware) valid(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	for _, user := range m.config.Auth.Users {
		userOK := subtle.ConstantTimeCompare([]byte(user.Username), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
		if userOK && passOK {
			return true
		}
	}
	return false
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"errors": []fiber.Map{
			{
				"code":    "UNAUTHORIZED",
				"message": message,
			},
		},
	})
}
