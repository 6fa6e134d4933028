package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func authRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := authRouter(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header required"},
		{"string subject", "Bearer " + sign(t, jwt.MapClaims{"sub": "user-42", "exp": exp}, testSecret), http.StatusOK, `"user-42"`},
		{"numeric userId", "Bearer " + sign(t, jwt.MapClaims{"userId": 7, "exp": exp}, testSecret), http.StatusOK, `"7"`},
		{"wrong secret", "Bearer " + sign(t, jwt.MapClaims{"sub": "x", "exp": exp}, "other"), http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), http.StatusUnauthorized, "invalid token"},
		{"no subject", "Bearer " + sign(t, jwt.MapClaims{"exp": exp}, testSecret), http.StatusUnauthorized, "user claim missing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}

	t.Run("websocket token query", func(t *testing.T) {
		w := httptest.NewRecorder()
		tok := sign(t, jwt.MapClaims{"sub": "ws-user", "exp": exp}, testSecret)
		req := httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil)
		req.Header.Set("Upgrade", "websocket")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ws-user")
	})

	t.Run("unset secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		authRouter("").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
