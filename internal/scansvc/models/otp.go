package models

import "time"

type OTPRecord struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	OTP       string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

func (o *OTPRecord) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
