package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/avvvet/csss-services/internal/chatbot"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/service"
)

// Auth

type Registered struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
}

func (c *Client) Register(ctx context.Context, in service.RegisterInput) (*Registered, error) {
	var out Registered
	if _, err := c.call(ctx, http.MethodPost, "/auth/register", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*service.LoginResult, error) {
	var out service.LoginResult
	in := map[string]string{"email": email, "password": password}
	if _, err := c.call(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OTP

type OTPSent struct {
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

func (c *Client) SendOTP(ctx context.Context, email string) (*OTPSent, error) {
	var out OTPSent
	if _, err := c.call(ctx, http.MethodPost, "/otp/send", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*service.LoginResult, error) {
	var out service.LoginResult
	in := map[string]string{"email": email, "otp": otp}
	if _, err := c.call(ctx, http.MethodPost, "/otp/verify", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Patient

type Uploaded struct {
	ScanID   int64         `json:"scan_id"`
	Status   models.Status `json:"status"`
	FilePath string        `json:"file_path"`
}

func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*Uploaded, error) {
	var out Uploaded
	if err := c.upload(ctx, "/patient/upload", "file", filename, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MyScans(ctx context.Context) ([]*models.Scan, error) {
	return c.scans(ctx, "/patient/scans")
}

func (c *Client) PatientStatus(ctx context.Context, patientID int64) ([]*models.Scan, error) {
	return c.scans(ctx, fmt.Sprintf("/patient/status/%d", patientID))
}

// DownloadReport returns the PDF of an approved scan and its filename.
func (c *Client) DownloadReport(ctx context.Context, scanID int64) ([]byte, string, error) {
	data, filename, err := c.download(ctx, fmt.Sprintf("/reports/pdf/%d", scanID))
	if err != nil {
		return nil, "", err
	}
	if filename == "" {
		filename = fmt.Sprintf("report_%d.pdf", scanID)
	}
	return data, filename, nil
}

// Doctor

type Analysis struct {
	Status         models.Status      `json:"status"`
	Prediction     string             `json:"prediction"`
	Confidence     float64            `json:"confidence"`
	AllPredictions map[string]float64 `json:"all_predictions"`
	ThresholdUsed  float64            `json:"threshold_used"`
}

type Notes struct {
	Status models.Status `json:"status"`
	Notes  string        `json:"notes"`
}

func (c *Client) DoctorPending(ctx context.Context) ([]*models.Scan, error) {
	return c.scans(ctx, "/doctor/pending")
}

func (c *Client) Analyze(ctx context.Context, scanID int64) (*Analysis, error) {
	var out Analysis
	if _, err := c.call(ctx, http.MethodPost, fmt.Sprintf("/doctor/analyze/%d", scanID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, scanID int64, notes string) (*Notes, error) {
	return c.notes(ctx, fmt.Sprintf("/doctor/verify/%d", scanID), notes)
}

// Pharmacist

func (c *Client) PharmacistQueue(ctx context.Context) ([]*models.Scan, error) {
	return c.scans(ctx, "/pharmacist/queue")
}

func (c *Client) Complete(ctx context.Context, scanID int64, notes string) (*Notes, error) {
	return c.notes(ctx, fmt.Sprintf("/pharmacist/complete/%d", scanID), notes)
}

// Admin

func (c *Client) AdminPending(ctx context.Context) ([]*models.Scan, error) {
	return c.scans(ctx, "/admin/pending")
}

func (c *Client) Approve(ctx context.Context, scanID int64) (*service.ApproveResult, error) {
	var out service.ApproveResult
	if _, err := c.call(ctx, http.MethodPost, fmt.Sprintf("/admin/approve/%d", scanID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reject(ctx context.Context, scanID int64, reason string) (*models.Scan, error) {
	var out models.Scan
	in := map[string]string{"reason": reason}
	if _, err := c.call(ctx, http.MethodPost, fmt.Sprintf("/admin/reject/%d", scanID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var out service.Stats
	if _, err := c.call(ctx, http.MethodGet, "/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chatbot

func (c *Client) Chat(ctx context.Context, message, sessionID string) (*chatbot.Reply, error) {
	var out chatbot.Reply
	in := map[string]string{"message": message, "session_id": sessionID}
	if _, err := c.call(ctx, http.MethodPost, "/chatbot/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) scans(ctx context.Context, path string) ([]*models.Scan, error) {
	out := []*models.Scan{}
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) notes(ctx context.Context, path, notes string) (*Notes, error) {
	var out Notes
	if _, err := c.call(ctx, http.MethodPost, path, map[string]string{"notes": notes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
