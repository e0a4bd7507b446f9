package export

import (
	"fmt"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/parquet-go/parquet-go"
)

// Row is one scan in the retraining dataset. Label is the prediction a
// doctor signed off on; it is empty for scans no doctor has verified.
type Row struct {
	ScanID          int64   `parquet:"scan_id"`
	PatientID       int64   `parquet:"patient_id"`
	FilePath        string  `parquet:"file_path"`
	Status          string  `parquet:"status"`
	Prediction      string  `parquet:"prediction"`
	Confidence      float64 `parquet:"confidence"`
	Label           string  `parquet:"label"`
	DoctorNotes     string  `parquet:"doctor_notes"`
	PharmacistNotes string  `parquet:"pharmacist_notes"`
	CreatedAtMs     int64   `parquet:"created_at_ms"`
}

func verified(s models.Status) bool {
	switch s {
	case models.StatusDoctorVerified, models.StatusPharmacistCompleted, models.StatusReportReady:
		return true
	}
	return false
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Rows converts scans; with verifiedOnly only doctor-reviewed scans are kept.
func Rows(scans []*models.Scan, verifiedOnly bool) []Row {
	rows := make([]Row, 0, len(scans))
	for _, s := range scans {
		if verifiedOnly && !verified(s.Status) {
			continue
		}
		r := Row{
			ScanID:          s.ID,
			PatientID:       s.PatientID,
			FilePath:        s.FilePath,
			Status:          string(s.Status),
			Prediction:      str(s.Prediction),
			DoctorNotes:     str(s.DoctorNotes),
			PharmacistNotes: str(s.PharmacistNotes),
			CreatedAtMs:     s.CreatedAt.UnixMilli(),
		}
		if s.Confidence != nil {
			r.Confidence = *s.Confidence
		}
		if verified(s.Status) {
			r.Label = r.Prediction
		}
		rows = append(rows, r)
	}
	return rows
}

func WriteFile(path string, rows []Row) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

func ReadFile(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
