package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-board/internal/domain"
)

func adminProfile() *domain.AdminProfile {
	return &domain.AdminProfile{ID: "1", Email: "admin@example.com", Role: "admin"}
}

func TestIssueAndParseToken(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)

	token, err := m.IssueToken(adminProfile())
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "1", claims.Subject)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)

	other := NewSessionManager("other-secret", time.Hour)
	token, err := other.IssueToken(adminProfile())
	require.NoError(t, err)
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewSessionManager("secret", -time.Minute)
	token, err = expired.IssueToken(adminProfile())
	require.NoError(t, err)
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAdmin(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)
	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "garbage"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		token, err := m.IssueToken(&domain.AdminProfile{ID: "2", Email: "x@example.com", Role: "viewer"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		token, err := m.IssueToken(adminProfile())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
