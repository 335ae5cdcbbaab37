package middleware

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"asset-cache/config"
	"asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupAuthTest configure un environnement de test pour l'authentification
func setupAuthTest() *fiber.App {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			Users: []config.User{
				{Username: "admin", Password: "admin123"},
				{Username: "user", Password: "password"},
			},
		},
	}
	log := utils.NewLogger(utils.Config{LogLevel: "error", LogFormat: "json"})
	authMiddleware := NewAuthMiddleware(cfg, log)

	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendString("success") }
	app.Get("/api/icon", authMiddleware.Authenticate(), ok)
	app.Delete("/cache", authMiddleware.Authenticate(), ok)
	app.Put("/api/resource", authMiddleware.Authenticate(), ok)
	app.Get("/cache/usage", authMiddleware.Require(), ok)
	return app
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func errorMessage(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UNAUTHORIZED", resp.Errors[0].Code)
	return resp.Errors[0].Message
}

func TestAuthMiddleware_AnonymousRead(t *testing.T) {
	app := setupAuthTest()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/icon", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAuthMiddleware_WriteRequiresAuth(t *testing.T) {
	app := setupAuthTest()

	for _, method := range []string{"DELETE", "PUT"} {
		path := "/cache"
		if method == "PUT" {
			path = "/api/resource"
		}
		t.Run(method, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(method, path, nil))
			require.NoError(t, err)
			assert.Equal(t, 401, resp.StatusCode)
			assert.Equal(t, `Basic realm="asset-cache"`, resp.Header.Get("WWW-Authenticate"))
			assert.Equal(t, "authentication required", errorMessage(t, resp.Body))
		})
	}
}

func TestAuthMiddleware_ValidCredentials(t *testing.T) {
	app := setupAuthTest()

	for _, u := range [][2]string{{"admin", "admin123"}, {"user", "password"}} {
		t.Run(u[0], func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/cache", nil)
			req.Header.Set("Authorization", basicAuth(u[0], u[1]))

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, "success", string(body))
		})
	}
}

func TestAuthMiddleware_InvalidCredentials(t *testing.T) {
	app := setupAuthTest()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "wrongpassword"},
		{"unknown user", "nonexistent", "anypassword"},
		{"empty username", "", "password"},
		{"empty password", "admin", ""},
		{"username case", "ADMIN", "admin123"},
		{"password case", "admin", "ADMIN123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/cache", nil)
			req.Header.Set("Authorization", basicAuth(tt.username, tt.password))

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 401, resp.StatusCode)
			assert.Equal(t, "invalid username or password", errorMessage(t, resp.Body))
		})
	}
}

func TestAuthMiddleware_ReadWithBadCredentials(t *testing.T) {
	app := setupAuthTest()

	req := httptest.NewRequest("GET", "/api/icon", nil)
	req.Header.Set("Authorization", basicAuth("admin", "nope"))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestAuthMiddleware_InvalidAuthFormat(t *testing.T) {
	app := setupAuthTest()

	headers := map[string]string{
		"bearer token":   "Bearer token123",
		"invalid base64": "Basic invalid-base64",
		"missing colon":  "Basic " + base64.StdEncoding.EncodeToString([]byte("admin")),
		"extra colon":    "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:admin123:extra")),
		"empty":          "Basic " + base64.StdEncoding.EncodeToString([]byte("")),
	}

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/api/resource", nil)
			req.Header.Set("Authorization", header)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 401, resp.StatusCode)
		})
	}
}

func TestAuthMiddleware_RequireCoversReads(t *testing.T) {
	app := setupAuthTest()

	resp, err := app.Test(httptest.NewRequest("GET", "/cache/usage", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("GET", "/cache/usage", nil)
	req.Header.Set("Authorization", basicAuth("admin", "admin123"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestAuthMiddleware_FetchRoutes(t *testing.T) {
	tests := []struct {
		name           string
		anonymousFetch bool
		wantStatus     int
	}{
		{"authenticated by default", false, 401},
		{"anonymous when enabled", true, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Auth: config.AuthConfig{Users: []config.User{{Username: "admin", Password: "admin123"}}}}
			cfg.Server.AnonymousFetch = tt.anonymousFetch
			authMiddleware := NewAuthMiddleware(cfg, utils.NewLogger(utils.Config{LogLevel: "error"}))

			app := fiber.New()
			app.Get("/api/font", authMiddleware.Fetch(), func(c *fiber.Ctx) error { return c.SendString("success") })

			resp, err := app.Test(httptest.NewRequest("GET", "/api/font?name=Inter&url=http://169.254.169.254/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			req := httptest.NewRequest("GET", "/api/font", nil)
			req.Header.Set("Authorization", basicAuth("admin", "admin123"))
			resp, err = app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}
