package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(tokens *Tokens, roles ...models.Role) http.Handler {
	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(tokens.JWTAuth()))
	r.Use(Require(roles...))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(claims.Email))
	})
	return r
}

func doGet(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	user := &models.User{ID: 42, Email: "doc@csss.com", Role: models.RoleDoctor}

	token, err := tokens.Issue(user, false)
	require.NoError(t, err)

	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "doc@csss.com", claims.Email)
	assert.Equal(t, models.RoleDoctor, claims.Role)
	assert.False(t, claims.OTPRequired)
	assert.NoError(t, claims.Authenticated())

	pre, err := tokens.Issue(&models.User{ID: 1, Email: "admin@csss.com", Role: models.RoleAdmin}, true)
	require.NoError(t, err)
	claims, err = tokens.Parse(pre)
	require.NoError(t, err)
	assert.ErrorIs(t, claims.Authenticated(), ErrPreAuth)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	other := NewTokens("other-secret", time.Hour)
	token, err := other.Issue(&models.User{ID: 1, Role: models.RolePatient}, false)
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Parse(token)
	assert.Error(t, err)
}

func TestRequire(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	h := newRouter(tokens, models.RoleAdmin)

	admin := &models.User{ID: 1, Email: "admin@csss.com", Role: models.RoleAdmin}
	doctor := &models.User{ID: 2, Email: "doctor@csss.com", Role: models.RoleDoctor}

	full, err := tokens.Issue(admin, false)
	require.NoError(t, err)
	preAuth, err := tokens.Issue(admin, true)
	require.NoError(t, err)
	wrongRole, err := tokens.Issue(doctor, false)
	require.NoError(t, err)
	expired, err := NewTokens("secret", -time.Minute).Issue(admin, false)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not.a.token", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"pre-auth", preAuth, http.StatusUnauthorized},
		{"wrong role", wrongRole, http.StatusForbidden},
		{"admin", full, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(h, tt.token)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec := doGet(h, full)
	assert.Equal(t, "admin@csss.com", rec.Body.String())
}

func TestRequireAnyRole(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	h := newRouter(tokens)

	token, err := tokens.Issue(&models.User{ID: 3, Email: "p@csss.com", Role: models.RolePatient}, false)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doGet(h, token).Code)
}
