package comm

import (
	"encoding/json"
	"time"
)

// Message is the envelope carried on every NATS subject and pushed to
// websocket clients.
type Message struct {
	Type     string          `json:"type"` // e.g. "scan-status", "report-email"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// message types
const (
	TypeScanStatus     = "scan-status"
	TypeOTPEmail       = "otp-email"
	TypeReportEmail    = "report-email"
	TypeRejectionEmail = "rejection-email"
	TypeReportPending  = "report-pending"
)

type ScanEvent struct {
	ScanID     int64     `json:"scan_id"`
	PatientID  int64     `json:"patient_id"`
	Status     string    `json:"status"`
	Prediction string    `json:"prediction,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type OTPEmail struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	OTP           string `json:"otp"`
	ExpireMinutes int    `json:"expire_minutes"`
}

type ReportEmail struct {
	ScanID   int64  `json:"scan_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Filename string `json:"filename"` // file inside REPORTS_DIR
}

type RejectionEmail struct {
	ScanID int64  `json:"scan_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ReportPending struct {
	ScanID     int64  `json:"scan_id"`
	PatientID  int64  `json:"patient_id"`
	Prediction string `json:"prediction"`
}

// Encode wraps data into a Message envelope and marshals it.
func Encode(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: msgType, Data: raw})
}
