package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/lestrrat-go/jwx/jwt"
)

var (
	ErrNoSession = errors.New("no session, please log in")
	ErrMalformed = errors.New("session token is malformed, please log in again")
	ErrExpired   = errors.New("session expired, please log in again")
	ErrForbidden = errors.New("you do not have permission to access this area")
)

type User struct {
	ID    int64       `json:"user_id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// Data is what a logged in CLI keeps between runs.
type Data struct {
	Token string `json:"access_token"`
	User  User   `json:"user"`
}

type Store interface {
	Load() (*Data, error)
	Save(d *Data) error
	Clear() error
}

// FileStore keeps the session as JSON readable only by the owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is ~/.csss/session.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".csss", "session.json"), nil
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns nil, nil when no session is stored.
func (s *FileStore) Load() (*Data, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("read session %s: %w", s.path, err)
	}
	return &d, nil
}

func (s *FileStore) Save(d *Data) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(s.path, 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Token satisfies the API client's token source; it is empty when no
// session is stored.
func (s *FileStore) Token() string {
	d, err := s.Load()
	if err != nil || d == nil {
		return ""
	}
	return d.Token
}

type Claims struct {
	UserID      int64
	Email       string
	Role        models.Role
	OTPRequired bool
	ExpiresAt   time.Time // zero when the token has no exp
}

// ParseClaims decodes token without checking its signature. The server
// verifies; the client only needs to know who it is and until when.
func ParseClaims(token string) (*Claims, error) {
	t, err := jwt.ParseString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	c := &Claims{ExpiresAt: t.Expiration()}
	if v, ok := t.Get("user_id"); ok {
		switch id := v.(type) {
		case float64:
			c.UserID = int64(id)
		case json.Number:
			c.UserID, _ = id.Int64()
		}
	}
	if v, ok := t.Get("email"); ok {
		c.Email, _ = v.(string)
	}
	if v, ok := t.Get("role"); ok {
		role, _ := v.(string)
		c.Role = models.Role(role)
	}
	if v, ok := t.Get("otp_required"); ok {
		c.OTPRequired, _ = v.(bool)
	}
	return c, nil
}

// Check validates token for role at now. An empty role accepts any.
// A token without exp counts as expired.
func Check(token string, role models.Role, now time.Time) (*Claims, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	c, err := ParseClaims(token)
	if err != nil {
		return nil, err
	}
	if c.ExpiresAt.IsZero() || !now.Before(c.ExpiresAt) {
		return nil, ErrExpired
	}
	if role != "" && c.Role != role {
		return nil, ErrForbidden
	}
	return c, nil
}

// Guard checks the stored session and clears it on any failure.
func Guard(store Store, role models.Role, now time.Time) (*Data, *Claims, error) {
	d, err := store.Load()
	if err != nil {
		store.Clear()
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	token := ""
	if d != nil {
		token = d.Token
	}

	c, err := Check(token, role, now)
	if err != nil {
		store.Clear()
		return nil, nil, err
	}
	return d, c, nil
}
