package mailer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

var ErrNoCredentials = errors.New("SMTP credentials not configured")

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	ReportsDir string
}

func ConfigFromEnv() Config {
	cfg := Config{
		Host:       os.Getenv("SMTP_HOST"),
		User:       os.Getenv("SMTP_USER"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		From:       os.Getenv("EMAIL_FROM"),
		ReportsDir: os.Getenv("REPORTS_DIR"),
	}
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && port > 0 {
		cfg.Port = port
	} else {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports/temp"
	}
	return cfg
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPSender dials the server per message with mandatory STARTTLS.
type SMTPSender struct {
	cfg Config
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Msg) error {
	if s.cfg.User == "" || s.cfg.Password == "" {
		return ErrNoCredentials
	}

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Mailer composes the CSSS notification emails.
type Mailer struct {
	from       string
	reportsDir string
	sender     Sender
}

func New(cfg Config, sender Sender) *Mailer {
	return &Mailer{from: cfg.From, reportsDir: cfg.ReportsDir, sender: sender}
}

func (m *Mailer) compose(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func greeting(name string) string {
	if name == "" {
		return "Dear Patient,"
	}
	return "Dear " + name + ","
}

func (m *Mailer) SendOTP(ctx context.Context, to, name, code string, expireMinutes int) error {
	body := fmt.Sprintf("%s\n\nYour one-time password (OTP) is:\n\n    %s\n\n"+
		"This code expires in %d minutes.\n\n"+
		"If you did not request this, please ignore this email.\n\n"+
		"Regards,\nClinical Scan Support System", greeting(name), code, expireMinutes)

	msg, err := m.compose(to, "Your OTP Code - Clinical Scan Support System", body)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}
	log.Infof("[Mailer.SendOTP] sent to %s", to)
	return nil
}

// SendReport mails the approved PDF stored under the reports directory.
func (m *Mailer) SendReport(ctx context.Context, to, name string, scanID int64, filename string) error {
	path := filepath.Join(m.reportsDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("report %s: %w", filename, err)
	}

	body := fmt.Sprintf("%s\n\nYour diagnostic report is now ready. "+
		"Please find it attached to this email.\n\n"+
		"If you have any questions, contact your doctor.\n\n"+
		"Regards,\nClinical Scan Support System\nAI Medical Center", greeting(name))

	msg, err := m.compose(to, fmt.Sprintf("Your Diagnostic Report - Scan #%d", scanID), body)
	if err != nil {
		return err
	}
	msg.AttachFile(path, mail.WithFileName(filepath.Base(filename)))

	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}
	log.Infof("[Mailer.SendReport] report %s emailed to %s", filename, to)
	return nil
}

func (m *Mailer) SendRejection(ctx context.Context, to, name string, scanID int64, reason string) error {
	if reason == "" {
		reason = "No reason was given."
	}
	body := fmt.Sprintf("%s\n\nThe report for scan #%d could not be approved.\n\n"+
		"Reason: %s\n\n"+
		"Please contact the clinic or upload a new scan.\n\n"+
		"Regards,\nClinical Scan Support System", greeting(name), scanID, reason)

	msg, err := m.compose(to, fmt.Sprintf("Scan #%d Report Rejected", scanID), body)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}
	log.Infof("[Mailer.SendRejection] sent to %s for scan %d", to, scanID)
	return nil
}
