package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func staffClaims(exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name: "Lan",
		Role: "staff",
	}
}

func TestAuth(t *testing.T) {
	var seen *Claims
	var token string
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r.Context())
		token = BearerToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), staffClaims(time.Now().Add(time.Hour)))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + valid, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), staffClaims(time.Now().Add(time.Hour))), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), staffClaims(time.Now().Add(-time.Hour))), http.StatusUnauthorized},
		{"no subject", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), Claims{Role: "staff"}), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, token = nil, ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "staff-1", seen.Subject)
				assert.Equal(t, "staff", seen.Role)
				assert.Equal(t, valid, token)
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Body.String(), `"error":`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Auth(secret)(RequireRole("staff")(ok))

	staff := sign(t, jwt.SigningMethodHS256, []byte(secret), staffClaims(time.Now().Add(time.Hour)))
	customer := staffClaims(time.Now().Add(time.Hour))
	customer.Role = "customer"
	cust := sign(t, jwt.SigningMethodHS256, []byte(secret), customer)

	for token, want := range map[string]int{staff: http.StatusOK, cust: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code)
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	r := chi.NewRouter()
	r.Use(Logging(log))
	r.With(Auth(secret)).Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetCorrelationID(r.Context()))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	})

	t.Run("generates a correlation id and records the user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, []byte(secret), staffClaims(time.Now().Add(time.Hour))))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "staff-1", fields["user_id"])
		assert.Equal(t, int64(http.StatusAccepted), fields["status"])
		assert.Equal(t, int64(2), fields["bytes"])
		assert.Equal(t, rec.Header().Get("X-Correlation-ID"), fields["correlation_id"])
	})

	t.Run("keeps a caller supplied correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
		req.Header.Set("X-Correlation-ID", "corr-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "", entries[0].ContextMap()["user_id"])
	})
}

func TestRecoverer(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recoverer(&logger.Logger{Logger: zap.New(core)})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Equal(t, 1, logs.Len())
}

func TestUserRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Auth(secret)(UserRateLimit(2, time.Minute)(ok))
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), staffClaims(time.Now().Add(time.Hour)))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_KeyedByIP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(1, time.Minute)(ok)

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:4000"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:4001"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:4000"))
}

func TestParsers(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}

	d, err := ParseDate("2024-03-10", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *d)
	d, err = ParseDate("", time.UTC)
	require.NoError(t, err)
	assert.Nil(t, d)
	_, err = ParseDate("10/03/2024", time.UTC)
	assert.Error(t, err)

	n, err := ParsePositive("page", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = ParsePositive("page", "0")
	assert.Error(t, err)

	assert.NoError(t, ValidateConversationID("c-1"))
	assert.Error(t, ValidateConversationID(""))
	assert.Error(t, ValidateConversationID("a b"))
	assert.Error(t, ValidateMessageContent("   "))
}
