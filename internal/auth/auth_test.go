package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-settlement/internal/config"
	"ms-settlement/internal/logger"
)

func signed(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("s3cret")
	ctx := context.Background()

	sub, err := v.Verify(ctx, signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = v.Verify(ctx, signed(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}))
	assert.Error(t, err)

	_, err = v.Verify(ctx, signed(t, "s3cret", jwt.SigningMethodHS512, jwt.MapClaims{"sub": "user-1"}))
	assert.Error(t, err)

	expired := jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()}
	_, err = v.Verify(ctx, signed(t, "s3cret", jwt.SigningMethodHS256, expired))
	assert.Error(t, err)

	_, err = v.Verify(ctx, signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{}))
	assert.Error(t, err)
}

func TestNewVerifierWithoutConfigIsNil(t *testing.T) {
	v, err := NewVerifier(context.Background(), config.AuthConfig{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewVerifier(context.Background(), config.AuthConfig{JWTSecret: "x"})
	require.NoError(t, err)
	assert.IsType(t, &HMACVerifier{}, v)
}

func TestMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(NewHMACVerifier("s3cret"), logger.NewNop())(next)

	tests := []struct {
		name   string
		header string
		status int
		user   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-7"}), http.StatusNoContent, "user-7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}

func TestMiddlewarePassThrough(t *testing.T) {
	called := false
	h := Middleware(nil, logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
