package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/auth"
)

type hostsStub map[string]bool

func (h hostsStub) IsHost(_ context.Context, user string) (bool, error) {
	if user == "0xbroken" {
		return false, errors.New("store down")
	}
	return h[user], nil
}

func newRouter(jwt *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	authed := r.Group("/", JWT(jwt))
	authed.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, Wallet(c)+"|"+c.GetString(ContextName)+"|"+SessionID(c))
	})
	authed.POST("/admin", RequireHost(hostsStub{"0xhost": true}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc)
	token, claims, err := svc.Generate("0xana", "Ana")
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xana|Ana|"+claims.SessionID(), w.Body.String())
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "nope").Code)
}

func TestRequireHost(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc)
	tokenFor := func(wallet string) string {
		tok, _, err := svc.Generate(wallet, "x")
		require.NoError(t, err)
		return tok
	}

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/admin", tokenFor("0xhost")).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/admin", tokenFor("0xguest")).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/admin", tokenFor("0xbroken")).Code)
}

func TestCORS_Preflight(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1))
	w := do(r, http.MethodOptions, "/me", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
