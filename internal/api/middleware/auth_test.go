package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	SetJWTSecret("auth-test-secret-0123456789")
	SetJWTValidation("ledger-test", "ledger-api-test")
	t.Cleanup(func() { SetJWTValidation("", "") })

	accountID := uuid.New()
	now := time.Now()
	valid := jwt.MapClaims{
		"account_id": accountID.String(),
		"role":       RoleAdmin,
		"iss":        "ledger-test",
		"aud":        "ledger-api-test",
		"sub":        accountID.String(),
		"exp":        now.Add(time.Hour).Unix(),
	}
	withClaim := func(key string, value any) jwt.MapClaims {
		out := jwt.MapClaims{}
		for k, v := range valid {
			out[k] = v
		}
		out[key] = value
		return out
	}

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + signToken(t, "auth-test-secret-0123456789", valid), status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, "another-secret", valid), status: http.StatusUnauthorized},
		{name: "wrong audience", header: "Bearer " + signToken(t, "auth-test-secret-0123456789", withClaim("aud", "other")), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, "auth-test-secret-0123456789", withClaim("exp", now.Add(-time.Minute).Unix())), status: http.StatusUnauthorized},
		{name: "subject mismatch", header: "Bearer " + signToken(t, "auth-test-secret-0123456789", withClaim("sub", uuid.NewString())), status: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var gotAccount uuid.UUID
			var gotAdmin bool
			h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAccount, _ = AccountIDFromContext(r.Context())
				gotAdmin = IsAdmin(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/accounts/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, accountID, gotAccount)
				assert.True(t, gotAdmin)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/fee-rates/WITHDRAW", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
