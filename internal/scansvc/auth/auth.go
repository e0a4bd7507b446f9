package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/go-chi/jwtauth"
)

var (
	ErrNoClaims   = errors.New("no token claims in context")
	ErrPreAuth    = errors.New("OTP verification required")
	ErrBadSubject = errors.New("invalid token payload: no user_id claim")
)

// Claims are the fields every csss token carries.
type Claims struct {
	UserID      int64
	Email       string
	Role        models.Role
	OTPRequired bool
}

// Authenticated returns ErrPreAuth for tokens still waiting on the admin OTP.
func (c *Claims) Authenticated() error {
	if c.OTPRequired {
		return ErrPreAuth
	}
	return nil
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	ja  *jwtauth.JWTAuth
	ttl time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		ja:  jwtauth.New("HS256", []byte(secret), nil),
		ttl: ttl,
	}
}

func (t *Tokens) JWTAuth() *jwtauth.JWTAuth {
	return t.ja
}

// Issue signs a token for user. Pre-auth tokens handed out before the
// admin OTP step carry otp_required and are refused by Require.
func (t *Tokens) Issue(user *models.User, otpRequired bool) (string, error) {
	claims := map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    string(user.Role),
		"exp":     time.Now().Add(t.ttl).Unix(),
	}
	if otpRequired {
		claims["otp_required"] = true
	}

	_, tokenString, err := t.ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return tokenString, nil
}

// Parse verifies tokenString and returns its claims.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	token, err := jwtauth.VerifyToken(t.ja, tokenString)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrNoClaims
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	return claimsFromMap(claims)
}

// FromContext reads the claims jwtauth.Verifier put on the request.
func FromContext(ctx context.Context) (*Claims, error) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrNoClaims
	}
	return claimsFromMap(claims)
}

func claimsFromMap(m map[string]interface{}) (*Claims, error) {
	c := &Claims{}

	switch v := m["user_id"].(type) {
	case float64:
		c.UserID = int64(v)
	case int64:
		c.UserID = v
	case int:
		c.UserID = int64(v)
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return nil, ErrBadSubject
		}
		c.UserID = id
	default:
		return nil, ErrBadSubject
	}

	c.Email, _ = m["email"].(string)
	role, _ := m["role"].(string)
	c.Role = models.Role(role)
	c.OTPRequired, _ = m["otp_required"].(bool)

	return c, nil
}

type errorBody struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Code: code, Error: msg})
}

// Require must run after jwtauth.Verifier. It rejects missing, invalid
// or pre-auth tokens with 401 and tokens of other roles with 403.
// With no roles any fully authenticated user passes.
func Require(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				deny(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if err := claims.Authenticated(); err != nil {
				deny(w, http.StatusUnauthorized, err.Error())
				return
			}
			if len(roles) > 0 {
				allowed := false
				for _, role := range roles {
					if claims.Role == role {
						allowed = true
						break
					}
				}
				if !allowed {
					deny(w, http.StatusForbidden, "Access denied")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
