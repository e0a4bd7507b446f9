package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the scan service settings read from the environment.
type Config struct {
	Port           string
	JWTSecret      string
	JWTExpire      time.Duration
	RateLimit      int
	UploadDir      string
	ReportsDir     string
	MaxUploadBytes int64
	OTPExpire      time.Duration
	ChatKBPath     string // empty uses the embedded knowledge base
	ChatSessionTTL time.Duration
}

// Load reads the environment. Unset or unparsable numbers fall back to
// their defaults; JWT_SECRET_KEY is required.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       os.Getenv("SCAN_SERVICE_PORT"),
		JWTSecret:  os.Getenv("JWT_SECRET_KEY"),
		UploadDir:  os.Getenv("UPLOAD_DIR"),
		ReportsDir: os.Getenv("REPORTS_DIR"),
		ChatKBPath: os.Getenv("CHATBOT_KB_PATH"),
	}

	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads/patient_scans"
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports/temp"
	}

	if minutes, err := strconv.Atoi(os.Getenv("JWT_EXPIRE_MINUTES")); err == nil && minutes > 0 {
		cfg.JWTExpire = time.Duration(minutes) * time.Minute
	} else {
		cfg.JWTExpire = 60 * time.Minute // default value
	}

	if limit, err := strconv.Atoi(os.Getenv("RATE_LIMIT")); err == nil && limit > 0 {
		cfg.RateLimit = limit
	} else {
		cfg.RateLimit = 100 // requests per minute per IP
	}

	if mb, err := strconv.Atoi(os.Getenv("MAX_UPLOAD_MB")); err == nil && mb > 0 {
		cfg.MaxUploadBytes = int64(mb) << 20
	} else {
		cfg.MaxUploadBytes = 10 << 20
	}

	if minutes, err := strconv.Atoi(os.Getenv("OTP_EXPIRE_MINUTES")); err == nil && minutes > 0 {
		cfg.OTPExpire = time.Duration(minutes) * time.Minute
	} else {
		cfg.OTPExpire = 10 * time.Minute
	}

	if minutes, err := strconv.Atoi(os.Getenv("CHAT_SESSION_TTL_MINUTES")); err == nil && minutes > 0 {
		cfg.ChatSessionTTL = time.Duration(minutes) * time.Minute
	} else {
		cfg.ChatSessionTTL = 60 * time.Minute
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	return cfg, nil
}
