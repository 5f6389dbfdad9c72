package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/core/domain"
)

var cfg = AuthConfig{Secret: "s3cret", Issuer: "iss", Audience: "aud"}

func TestRedactJSON(t *testing.T) {
	in := []byte(`{"code":"123456","order":{"dacCode":"654321","id":"o1"},"items":[{"Password":"x"}]}`)
	out := string(redactJSON(in))

	assert.NotContains(t, out, "123456")
	assert.NotContains(t, out, "654321")
	assert.Contains(t, out, `"id":"o1"`)
	assert.Contains(t, out, `"Password":"***redacted***"`)

	assert.Equal(t, "not json", string(redactJSON([]byte("not json"))))
}

func serve(t *testing.T, h gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, domain.Principal) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var got domain.Principal
	r := gin.New()
	r.GET("/x", h, func(c *gin.Context) {
		got, _ = PrincipalFrom(c)
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, got
}

func TestAuthz(t *testing.T) {
	a := NewAuthz(cfg)
	seller, err := SignToken(cfg, domain.Principal{UserID: "s1", Role: domain.RoleSeller}, time.Hour)
	require.NoError(t, err)

	t.Run("query token", func(t *testing.T) {
		w, p := serve(t, a.Require(domain.CapCreateListing), httptest.NewRequest(http.MethodGet, "/x?token="+seller, nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, domain.Principal{UserID: "s1", Role: domain.RoleSeller}, p)
	})

	t.Run("require any", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+seller)
		w, _ := serve(t, a.RequireAny(domain.CapViewLedger, domain.CapConfirmDelivery), req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+seller)
		w, _ := serve(t, a.Require(domain.CapApproveListing), req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := SignToken(cfg, domain.Principal{UserID: "s1", Role: domain.RoleSeller}, -time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+old)
		w, _ := serve(t, a.Require(), req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		tok, err := SignToken(cfg, domain.Principal{UserID: "x", Role: "root"}, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w, _ := serve(t, a.Require(), req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestLogging_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logging(slogDiscard()))
	r.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
}

func TestLogging_PassesLargeBodyThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	body := append([]byte(`{"description":"`), bytes.Repeat([]byte("a"), 2<<20)...)
	body = append(body, []byte(`"}`)...)

	var received int
	r := gin.New()
	r.Use(Logging(slogDiscard()))
	r.POST("/x", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		received = len(b)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, len(body), received)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
