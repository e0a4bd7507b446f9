package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	// any key works, the client never verifies
	_, token, err := jwtauth.New("HS256", []byte("server-only"), nil).Encode(claims)
	require.NoError(t, err)
	return token
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".csss", "session.json")
	s := NewFileStore(path)

	d, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Empty(t, s.Token())

	want := &Data{Token: "abc", User: User{ID: 4, Name: "Sara", Email: "sara@example.com", Role: models.RolePatient}}
	require.NoError(t, s.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "abc", s.Token())

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing twice is fine")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, map[string]interface{}{
		"user_id": 7, "email": "doc@csss.com", "role": "doctor", "exp": exp.Unix(),
	})

	c, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.UserID)
	assert.Equal(t, "doc@csss.com", c.Email)
	assert.Equal(t, models.RoleDoctor, c.Role)
	assert.False(t, c.OTPRequired)
	assert.True(t, exp.Equal(c.ExpiresAt))

	_, err = ParseClaims("not.a.jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCheck(t *testing.T) {
	now := time.Now()
	valid := sign(t, map[string]interface{}{"user_id": 1, "role": "admin", "exp": now.Add(time.Minute).Unix()})

	tests := []struct {
		name  string
		token string
		role  models.Role
		err   error
	}{
		{"empty", "", "", ErrNoSession},
		{"garbage", "garbage", "", ErrMalformed},
		{"expired", sign(t, map[string]interface{}{"user_id": 1, "role": "admin", "exp": now.Add(-time.Minute).Unix()}), "", ErrExpired},
		{"no exp", sign(t, map[string]interface{}{"user_id": 1, "role": "admin"}), "", ErrExpired},
		{"wrong role", valid, models.RoleDoctor, ErrForbidden},
		{"any role", valid, "", nil},
		{"right role", valid, models.RoleAdmin, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.token, tt.role, now)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGuardClearsOnFailure(t *testing.T) {
	now := time.Now()
	s := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	_, _, err := Guard(s, "", now)
	assert.ErrorIs(t, err, ErrNoSession)

	token := sign(t, map[string]interface{}{"user_id": 2, "role": "pharmacist", "exp": now.Add(time.Hour).Unix()})
	require.NoError(t, s.Save(&Data{Token: token, User: User{ID: 2, Role: models.RolePharmacist}}))

	d, c, err := Guard(s, models.RolePharmacist, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.User.ID)
	assert.Equal(t, models.RolePharmacist, c.Role)

	_, _, err = Guard(s, models.RoleAdmin, now)
	assert.ErrorIs(t, err, ErrForbidden)
	d, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, d, "forbidden clears the session")

	require.NoError(t, os.WriteFile(s.Path(), []byte("{"), 0o600))
	_, _, err = Guard(s, "", now)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}
