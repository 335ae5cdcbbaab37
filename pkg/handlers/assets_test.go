package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"asset-cache/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const pngDataURL = "data:image/png;base64,iVBORw0KGgo="

func setupAssetTestEnv() (*fiber.App, *MockCacheService) {
	log := utils.NewLogger(utils.Config{LogLevel: "error"})
	mockCacheService := new(MockCacheService)
	handler := NewAssetHandler(mockCacheService, log)

	app := fiber.New()
	app.Get("/api/icon", handler.GetIcon)
	app.Get("/api/font", handler.GetFont)
	app.Put("/api/resource", handler.PutResource)
	app.Get("/api/resource", handler.GetResource)
	return app, mockCacheService
}

func decodeJSON(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestGetIcon_JSON(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()

	mockCacheService.On("DomainFor", "https://www.example.com/favicon.ico", "").Return("example.com")
	mockCacheService.On("GetIcon", mock.Anything, "https://www.example.com/favicon.ico", "").Return(pngDataURL)

	req := httptest.NewRequest("GET", "/api/icon?url="+url.QueryEscape("https://www.example.com/favicon.ico"), nil)
	resp, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body := decodeJSON(t, resp.Body)
	assert.Equal(t, "example.com", body["domain"])
	assert.Equal(t, pngDataURL, body["icon"])
	mockCacheService.AssertExpectations(t)
}

func TestGetIcon_Raw(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()

	mockCacheService.On("DomainFor", "https://example.com/", "example.com").Return("example.com")
	mockCacheService.On("GetIcon", mock.Anything, "https://example.com/", "example.com").Return(pngDataURL)

	req := httptest.NewRequest("GET", "/api/icon?raw=1&domain=example.com&url="+url.QueryEscape("https://example.com/"), nil)
	resp, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "sandbox")
	raw, _ := io.ReadAll(resp.Body)
	want, _ := base64.StdEncoding.DecodeString("iVBORw0KGgo=")
	assert.Equal(t, want, raw)
}

func TestGetIcon_RawServesImagesOnly(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()

	mockCacheService.On("DomainFor", "https://example.com/", "").Return("example.com")
	mockCacheService.On("GetIcon", mock.Anything, "https://example.com/", "").Return("data:text/html;base64,PHNjcmlwdD5hbGVydCgxKTwvc2NyaXB0Pg==")

	resp, err := app.Test(httptest.NewRequest("GET", "/api/icon?raw=1&url="+url.QueryEscape("https://example.com/"), nil))
	require.NoError(t, err)
	assert.Equal(t, 415, resp.StatusCode)
	assert.NotContains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "Stored icon is not an image", decodeJSON(t, resp.Body)["error"])
}

func TestGetIcon_InvalidURL(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()

	for _, q := range []string{"", "?url=ftp://example.com/x", "?url=" + url.QueryEscape("not a url")} {
		req := httptest.NewRequest("GET", "/api/icon"+q, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode, q)
	}
	mockCacheService.AssertNotCalled(t, "GetIcon", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetFont(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		font       string
		ok         bool
		expectCall bool
		wantStatus int
	}{
		{name: "found", query: "?name=Inter&url=https://fonts.example/inter.woff2", font: "data:font/woff2;base64,AA==", ok: true, expectCall: true, wantStatus: 200},
		{name: "unavailable", query: "?name=Inter&url=https://fonts.example/inter.woff2", ok: false, expectCall: true, wantStatus: 404},
		{name: "missing name", query: "?url=https://fonts.example/inter.woff2", wantStatus: 400},
		{name: "bad url", query: "?name=Inter&url=inter.woff2", wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, mockCacheService := setupAssetTestEnv()
			if tt.expectCall {
				mockCacheService.On("GetFont", mock.Anything, "Inter", "https://fonts.example/inter.woff2").Return(tt.font, tt.ok)
			}

			resp, err := app.Test(httptest.NewRequest("GET", "/api/font"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == 200 {
				body := decodeJSON(t, resp.Body)
				assert.Equal(t, tt.font, body["font"])
				assert.Equal(t, "Inter", body["name"])
			}
			mockCacheService.AssertExpectations(t)
		})
	}
}

func TestPutResource(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()
	mockCacheService.On("CacheResource", mock.Anything, "https://example.com/app.css", "body{}", "css").Return()

	req := httptest.NewRequest("PUT", "/api/resource", strings.NewReader(`{"url":"https://example.com/app.css","content":"body{}","type":"css"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	mockCacheService.AssertExpectations(t)
}

func TestPutResource_Invalid(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()

	for _, body := range []string{
		`{"url":"","content":"x","type":"css"}`,
		`{"url":"https://example.com/a","content":"x","type":""}`,
		`{"url":"https://example.com/a","content":"x","type":"Not Valid"}`,
		`not json`,
	} {
		req := httptest.NewRequest("PUT", "/api/resource", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode, body)
	}
	mockCacheService.AssertNotCalled(t, "CacheResource", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetResource(t *testing.T) {
	app, mockCacheService := setupAssetTestEnv()
	mockCacheService.On("GetCachedResource", mock.Anything, "https://example.com/app.css").Return("body{}", true)
	mockCacheService.On("GetCachedResource", mock.Anything, "https://example.com/missing.css").Return("", false)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/resource?url="+url.QueryEscape("https://example.com/app.css"), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "body{}", decodeJSON(t, resp.Body)["content"])

	resp, err = app.Test(httptest.NewRequest("GET", "/api/resource?url="+url.QueryEscape("https://example.com/missing.css"), nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
