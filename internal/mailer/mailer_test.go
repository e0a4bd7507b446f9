package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type recordingSender struct {
	err  error
	sent []string
}

func (s *recordingSender) Send(_ context.Context, msg *mail.Msg) error {
	if s.err != nil {
		return s.err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	s.sent = append(s.sent, buf.String())
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func newMailer(t *testing.T) (*Mailer, *recordingSender, string) {
	t.Helper()
	dir := t.TempDir()
	sender := &recordingSender{}
	return New(Config{From: "CSSS <noreply@csss.com>", ReportsDir: dir}, sender), sender, dir
}

func envelope(t *testing.T, msgType string, data interface{}) []byte {
	t.Helper()
	b, err := comm.Encode(msgType, data)
	require.NoError(t, err)
	return b
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("SMTP_USER", "clinic@example.com")
	t.Setenv("SMTP_PASSWORD", "app-pass")
	t.Setenv("EMAIL_FROM", "")
	t.Setenv("REPORTS_DIR", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, Config{
		Host:       "smtp.gmail.com",
		Port:       587,
		User:       "clinic@example.com",
		Password:   "app-pass",
		From:       "clinic@example.com",
		ReportsDir: "reports/temp",
	}, cfg)

	t.Setenv("SMTP_PORT", "2525")
	assert.Equal(t, 2525, ConfigFromEnv().Port)
}

func TestSMTPSenderRequiresCredentials(t *testing.T) {
	m := New(Config{From: "noreply@csss.com"}, NewSMTPSender(Config{Host: "localhost", Port: 587}))
	err := m.SendOTP(context.Background(), "admin@csss.com", "Admin", "123456", 10)
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.EqualError(t, err, "SMTP credentials not configured")
}

func TestHandleOTP(t *testing.T) {
	m, sender, _ := newMailer(t)
	h := NewHandler(m, nil)

	err := h.Handle(context.Background(), envelope(t, comm.TypeOTPEmail, comm.OTPEmail{
		Email: "admin@csss.com", Name: "Admin", OTP: "482913", ExpireMinutes: 10,
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	raw := sender.sent[0]
	assert.Contains(t, raw, "Subject: Your OTP Code - Clinical Scan Support System")
	assert.Contains(t, raw, "<admin@csss.com>")
	assert.Contains(t, raw, "482913")
	assert.Contains(t, raw, "expires in 10 minutes")
}

func TestHandleReport(t *testing.T) {
	m, sender, dir := newMailer(t)
	h := NewHandler(m, nil)
	ctx := context.Background()
	data := comm.ReportEmail{ScanID: 7, Email: "sara@example.com", Name: "Sara", Filename: "Report_Scan_7_P000002.pdf"}

	err := h.Handle(ctx, envelope(t, comm.TypeReportEmail, data))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, sender.sent)

	require.NoError(t, os.WriteFile(filepath.Join(dir, data.Filename), []byte("%PDF-1.3 fake"), 0o644))
	require.NoError(t, h.Handle(ctx, envelope(t, comm.TypeReportEmail, data)))
	require.Len(t, sender.sent, 1)

	raw := sender.sent[0]
	assert.Contains(t, raw, "Subject: Your Diagnostic Report - Scan #7")
	assert.Contains(t, raw, "Dear Sara,")
	assert.Contains(t, raw, `filename="Report_Scan_7_P000002.pdf"`)
}

func TestHandleRejection(t *testing.T) {
	m, sender, _ := newMailer(t)
	h := NewHandler(m, nil)

	require.NoError(t, h.Handle(context.Background(), envelope(t, comm.TypeRejectionEmail, comm.RejectionEmail{
		ScanID: 3, Email: "sara@example.com", Reason: "image too blurry",
	})))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Subject: Scan #3 Report Rejected")
	assert.Contains(t, sender.sent[0], "Dear Patient,")
	assert.Contains(t, sender.sent[0], "image too blurry")
}

func TestHandlePending(t *testing.T) {
	m, sender, _ := newMailer(t)
	notifier := &recordingNotifier{}
	h := NewHandler(m, notifier)

	require.NoError(t, h.Handle(context.Background(), envelope(t, comm.TypeReportPending, comm.ReportPending{
		ScanID: 9, PatientID: 4, Prediction: "Pneumonia",
	})))
	assert.Empty(t, sender.sent)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "*Scan ID:* 9")
	assert.Contains(t, notifier.texts[0], "*AI Prediction:* Pneumonia")

	// no notifier configured
	assert.NoError(t, NewHandler(m, nil).Handle(context.Background(), envelope(t, comm.TypeReportPending, comm.ReportPending{ScanID: 1})))
}

func TestHandleErrors(t *testing.T) {
	m, sender, _ := newMailer(t)
	h := NewHandler(m, nil)
	ctx := context.Background()

	assert.Error(t, h.Handle(ctx, []byte("not json")))
	assert.EqualError(t, h.Handle(ctx, envelope(t, "withdrawal", struct{}{})), "unknown message type: withdrawal")

	bad, err := json.Marshal(comm.Message{Type: comm.TypeOTPEmail, Data: json.RawMessage(`"nope"`)})
	require.NoError(t, err)
	assert.Error(t, h.Handle(ctx, bad))

	assert.Error(t, h.Handle(ctx, envelope(t, comm.TypeOTPEmail, comm.OTPEmail{Email: "not an address", OTP: "1"})))

	sender.err = errors.New("dial tcp: refused")
	err = h.Handle(ctx, envelope(t, comm.TypeOTPEmail, comm.OTPEmail{Email: "admin@csss.com", OTP: "1"}))
	assert.EqualError(t, err, "dial tcp: refused")
}

func TestPendingText(t *testing.T) {
	text := PendingText(comm.ReportPending{ScanID: 2, PatientID: 5}, time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC))
	assert.Contains(t, text, "*AI Prediction:* N/A")
	assert.Contains(t, text, "*Time:* 2025-05-01 09:30:00")
}

func TestChatIDsFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID_1", "1001")
	t.Setenv("TELEGRAM_CHAT_ID_2", "abc")
	t.Setenv("TELEGRAM_CHAT_ID_3", "-1003")
	assert.Equal(t, []int64{1001, -1003}, ChatIDsFromEnv())

	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	assert.Nil(t, TelegramFromEnv())
}
