// Package report builds the diagnostic report handed to patients once
// an admin approves a scan.
package report

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/shopspring/decimal"
)

const (
	Department = "Radiology"
	Hospital   = "AI Medical Center"
	AIModel    = "MobileNetV2"
	AIVersion  = "v3.0"
)

// Context is everything the PDF layout prints.
type Context struct {
	ReportID   string
	ReportDate string
	ReportTime string
	ScanID     int64

	PatientName  string
	PatientID    string
	PatientEmail string

	Department string
	Hospital   string
	Priority   string

	ScanType   string
	BodyPart   string
	ScanDate   string
	ScanTime   string
	ScanStatus string

	AIModel    string
	AIVersion  string
	Prediction string
	Confidence string // percent with two decimals, or N/A
	RiskLevel  string

	DoctorNotes     string
	Impression      string
	Recommendations []string
	Prescription    string

	DoctorName          string
	DoctorQualification string
	PharmacistName      string

	ScanImage     []byte // nil when the file is gone
	ScanImageType string // "PNG" or "JPG"
}

// RiskLevel grades the AI result for the report summary.
func RiskLevel(confidence *float64, prediction *string) string {
	if prediction != nil && *prediction == "Normal" {
		return "Low"
	}
	if confidence == nil {
		return "Unknown"
	}
	switch {
	case *confidence >= 0.90:
		return "High"
	case *confidence >= 0.70:
		return "Moderate"
	default:
		return "Low-Moderate"
	}
}

// ConfidencePercent renders 0.91234 as "91.23".
func ConfidencePercent(confidence *float64) string {
	if confidence == nil {
		return "N/A"
	}
	return decimal.NewFromFloat(*confidence).Mul(decimal.NewFromInt(100)).StringFixed(2)
}

// Filename is the attachment and download name of a scan's report.
func Filename(scanID, patientID int64) string {
	return fmt.Sprintf("Report_Scan_%d_P%06d.pdf", scanID, patientID)
}

// BuildContext maps a scan and its patient onto the report layout.
// imagePath is the absolute scan file; it is embedded when readable.
func BuildContext(scan *models.Scan, patient *models.User, imagePath string, now time.Time) *Context {
	scanAt := scan.CreatedAt
	if scanAt.IsZero() {
		scanAt = now
	}

	doctorNotes := "No findings recorded."
	if scan.DoctorNotes != nil && *scan.DoctorNotes != "" {
		doctorNotes = *scan.DoctorNotes
	}
	prescription := ""
	if scan.PharmacistNotes != nil {
		prescription = *scan.PharmacistNotes
	}

	last := "Please follow the prescribed treatment plan."
	if scan.PredictionOr("") == "Normal" {
		last = "No immediate treatment required."
	}

	ctx := &Context{
		ReportID:   fmt.Sprintf("%d-%05d", now.Year(), scan.ID),
		ReportDate: now.Format("02-01-2006"),
		ReportTime: now.Format("03:04 PM"),
		ScanID:     scan.ID,

		PatientName:  patient.Name,
		PatientID:    fmt.Sprintf("%06d", patient.ID),
		PatientEmail: patient.Email,

		Department: Department,
		Hospital:   Hospital,
		Priority:   "Normal",

		ScanType:   "CT Scan",
		BodyPart:   "Chest",
		ScanDate:   scanAt.Format("02-01-2006"),
		ScanTime:   scanAt.Format("03:04 PM"),
		ScanStatus: scan.Status.Label(),

		AIModel:    AIModel,
		AIVersion:  AIVersion,
		Prediction: scan.PredictionOr("—"),
		Confidence: ConfidencePercent(scan.Confidence),
		RiskLevel:  RiskLevel(scan.Confidence, scan.Prediction),

		DoctorNotes: doctorNotes,
		Impression:  "Based on AI analysis and clinical review.",
		Recommendations: []string{
			"Routine follow-up if symptoms persist.",
			"Consult physician if discomfort continues.",
			last,
		},
		Prescription: prescription,

		DoctorName:          "Attending Physician",
		DoctorQualification: "MD Radiology",
		PharmacistName:      "Pharmacist",
	}

	if patient.Name == "" {
		ctx.PatientName = "—"
	}

	if imagePath != "" {
		if data, err := os.ReadFile(imagePath); err == nil {
			if t := imageType(data); t != "" {
				ctx.ScanImage = data
				ctx.ScanImageType = t
			}
		}
	}

	return ctx
}

// imageType returns the fpdf image type of data, or "" when it is not
// a decodable PNG or JPEG.
func imageType(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	switch format {
	case "png":
		return "PNG"
	case "jpeg":
		return "JPG"
	}
	return ""
}
