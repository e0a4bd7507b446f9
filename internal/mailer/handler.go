package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const sendTimeout = 60 * time.Second

// Handler consumes mail.service envelopes.
type Handler struct {
	mailer   *Mailer
	notifier Notifier
}

func NewHandler(m *Mailer, notifier Notifier) *Handler {
	return &Handler{mailer: m, notifier: notifier}
}

// HandleMsg is the NATS subscription callback. Failures are logged; the
// publisher never waits for delivery.
func (h *Handler) HandleMsg(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := h.Handle(ctx, msg.Data); err != nil {
		log.Errorf("[mail.service] %s", err)
	}
}

func (h *Handler) Handle(ctx context.Context, data []byte) error {
	var m comm.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch m.Type {
	case comm.TypeOTPEmail:
		var req comm.OTPEmail
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return fmt.Errorf("invalid %s: %w", m.Type, err)
		}
		return h.mailer.SendOTP(ctx, req.Email, req.Name, req.OTP, req.ExpireMinutes)

	case comm.TypeReportEmail:
		var req comm.ReportEmail
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return fmt.Errorf("invalid %s: %w", m.Type, err)
		}
		return h.mailer.SendReport(ctx, req.Email, req.Name, req.ScanID, req.Filename)

	case comm.TypeRejectionEmail:
		var req comm.RejectionEmail
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return fmt.Errorf("invalid %s: %w", m.Type, err)
		}
		return h.mailer.SendRejection(ctx, req.Email, req.Name, req.ScanID, req.Reason)

	case comm.TypeReportPending:
		var req comm.ReportPending
		if err := json.Unmarshal(m.Data, &req); err != nil {
			return fmt.Errorf("invalid %s: %w", m.Type, err)
		}
		if h.notifier != nil {
			h.notifier.Notify(PendingText(req, time.Now()))
		}
		return nil

	default:
		return fmt.Errorf("unknown message type: %s", m.Type)
	}
}

func PendingText(req comm.ReportPending, now time.Time) string {
	prediction := req.Prediction
	if prediction == "" {
		prediction = "N/A"
	}
	return fmt.Sprintf(
		"*REPORT AWAITING APPROVAL*\n\n"+
			"*Scan ID:* %d\n"+
			"*Patient ID:* %d\n"+
			"*AI Prediction:* %s\n"+
			"*Time:* %s",
		req.ScanID,
		req.PatientID,
		prediction,
		now.Format("2006-01-02 15:04:05"),
	)
}
