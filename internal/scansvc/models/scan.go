package models

import "time"

// Scan is a patient-submitted image tracked through the review workflow.
type Scan struct {
	ID              int64     `json:"id"`
	PatientID       int64     `json:"patient_id"`
	FilePath        string    `json:"file_path"` // relative, forward slashes
	Prediction      *string   `json:"prediction"`
	Confidence      *float64  `json:"confidence"`
	DoctorNotes     *string   `json:"doctor_notes"`
	PharmacistNotes *string   `json:"pharmacist_notes"`
	RejectReason    *string   `json:"reject_reason,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Scan) PredictionOr(def string) string {
	if s.Prediction == nil || *s.Prediction == "" {
		return def
	}
	return *s.Prediction
}
