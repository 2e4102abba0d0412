package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestLoginRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(domain.LoginRequest{Email: "staff@example.com", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	env := newTestEnv(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s@example.com","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "staff@example.com",
		"password": testPassword,
		"role":     "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "staff@example.com")

	for _, tc := range []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"forged", strings.Repeat("ab", 32)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/vendors/101", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			if tc.header != "" {
				req.Header.Set("X-CSRF-Token", tc.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestCSRFTokenEndpointIssuesValidToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.True(t, env.api.validateCSRFToken(payload["csrf_token"]))
	assert.False(t, env.api.validateCSRFToken(""))
}

func TestServerErrorsStayGeneric(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.api.writeServiceError(rec, fmt.Errorf("pq: relation \"vendors\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "staff@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/nowhere", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/messages/unread-count", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
