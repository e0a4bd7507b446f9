package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type AuthService struct {
	users     UserStore
	otps      OTPStore
	tokens    TokenIssuer
	pub       Publisher
	otpExpire time.Duration
	now       func() time.Time
}

func NewAuthService(users UserStore, otps OTPStore, tokens TokenIssuer, pub Publisher, otpExpire time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		otps:      otps,
		tokens:    tokens,
		pub:       pub,
		otpExpire: otpExpire,
		now:       time.Now,
	}
}

type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// LoginResult is the body of a successful login or OTP verification.
// Admin logins get a pre-auth token and OTPRequired set.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	OTPRequired bool        `json:"otp_required"`
	Role        models.Role `json:"role,omitempty"`
	Name        string      `json:"name"`
	UserID      int64       `json:"user_id,omitempty"`
	Email       string      `json:"email,omitempty"`
}

// Register creates an active account. Only a caller authenticated as
// admin may create another admin.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, callerRole models.Role) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = models.RolePatient
	}

	if !in.Role.Valid() {
		return nil, newError(http.StatusBadRequest, "Invalid role")
	}
	if in.Role == models.RoleAdmin && callerRole != models.RoleAdmin {
		return nil, newError(http.StatusForbidden, "Only an admin can create admin accounts")
	}
	if in.Name == "" {
		return nil, newError(http.StatusBadRequest, "Name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, newError(http.StatusBadRequest, "Invalid email address")
	}
	if len(in.Password) < minPasswordLen {
		return nil, newError(http.StatusBadRequest, "Password must be at least %d characters", minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: string(hash),
		Role:     in.Role,
		IsActive: true,
	}
	id, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, newError(http.StatusBadRequest, "Email already registered")
		}
		return nil, err
	}
	user.ID = id
	log.Infof("[AuthService.Register] user %d registered as %s", id, user.Role)
	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidLogin
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidLogin
	}

	if user.Role == models.RoleAdmin {
		token, err := s.tokens.Issue(user, true)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			AccessToken: token,
			TokenType:   "bearer",
			OTPRequired: true,
			Name:        user.Name,
			Email:       user.Email,
		}, nil
	}

	token, err := s.tokens.Issue(user, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		Name:        user.Name,
		UserID:      user.ID,
	}, nil
}

// SendOTP replaces any outstanding code for an admin and queues the
// email. It returns the validity in minutes.
func (s *AuthService) SendOTP(ctx context.Context, email string) (int, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return 0, err
	}
	if !activeAdmin(user) {
		return 0, ErrAdminNotFound
	}

	code, err := generateOTP()
	if err != nil {
		return 0, err
	}
	if err := s.otps.Replace(ctx, user.Email, code, s.now().Add(s.otpExpire)); err != nil {
		return 0, err
	}

	minutes := int(s.otpExpire / time.Minute)
	err = publishMail(s.pub, comm.TypeOTPEmail, comm.OTPEmail{
		Email:         user.Email,
		Name:          user.Name,
		OTP:           code,
		ExpireMinutes: minutes,
	})
	if err != nil {
		log.Errorf("[AuthService.SendOTP] publish otp email for %s: %s", user.Email, err)
		return 0, newError(http.StatusInternalServerError, "Failed to send OTP email")
	}
	return minutes, nil
}

// VerifyOTP consumes a code and returns a full admin token.
func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	rec, err := s.otps.LatestUnused(ctx, email, strings.TrimSpace(otp))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrInvalidOTP
	}

	if err := s.otps.MarkUsed(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, ErrOTPExpired
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !activeAdmin(user) {
		return nil, ErrAdminNotFound
	}

	token, err := s.tokens.Issue(user, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		Name:        user.Name,
		UserID:      user.ID,
	}, nil
}

// activeAdmin applies Login's is_active rule to the OTP routes.
func activeAdmin(u *models.User) bool {
	return u != nil && u.IsActive && u.Role == models.RoleAdmin
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
