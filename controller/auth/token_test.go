package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewTokenManager("secret", "marketplace-auth", time.Hour)
	tok, err := m.Issue("user-a", "customer")
	require.NoError(t, err)

	claims, err := m.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-a", claims.UserID)
	assert.Equal(t, "customer", claims.Role)
}

func TestValidateRejects(t *testing.T) {
	m := NewTokenManager("secret", "marketplace-auth", time.Hour)
	tok, err := m.Issue("user-a", "customer")
	require.NoError(t, err)

	other := NewTokenManager("other", "marketplace-auth", time.Hour)
	_, err = other.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewTokenManager("secret", "someone-else", time.Hour)
	_, err = wrongIssuer.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m := NewTokenManager("secret", "", time.Minute)
	issued := time.Now()
	m.now = func() time.Time { return issued }
	tok, err := m.Issue("user-a", "")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.Validate(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTokenManager("secret", "", time.Hour)
	r := gin.New()
	r.GET("/me", BearerAuth(m), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c)+"/"+GetRole(c))
	})

	tok, err := m.Issue("user-b", "provider")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"ok", "Bearer " + tok, http.StatusOK, "user-b/provider"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(AuthHeaderKey, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/in", APIKeyAuth("k1"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/in", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/in", nil)
	req.Header.Set(APIKeyHeader, "k1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// 未配置 key 时接口不可用
	r2 := gin.New()
	r2.POST("/in", APIKeyAuth(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	req = httptest.NewRequest(http.MethodPost, "/in", nil)
	req.Header.Set(APIKeyHeader, "")
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
