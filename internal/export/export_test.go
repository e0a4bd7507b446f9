package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(s string) *string { return &s }

func fp(f float64) *float64 { return &f }

func sample() []*models.Scan {
	created := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)
	return []*models.Scan{
		{ID: 1, PatientID: 4, FilePath: "uploads/patient_scans/a.png", Status: models.StatusPendingAI, CreatedAt: created},
		{ID: 2, PatientID: 4, FilePath: "uploads/patient_scans/b.png", Status: models.StatusAIAnalyzed,
			Prediction: sp("Normal"), Confidence: fp(0.8), CreatedAt: created},
		{ID: 3, PatientID: 5, FilePath: "uploads/patient_scans/c.png", Status: models.StatusReportReady,
			Prediction: sp("Pneumonia"), Confidence: fp(0.95), DoctorNotes: sp("Right lower lobe"),
			PharmacistNotes: sp("Amoxicillin"), CreatedAt: created},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sample(), false)
	require.Len(t, rows, 3)
	assert.Equal(t, "", rows[0].Prediction)
	assert.Equal(t, "", rows[1].Label, "AI only, not a label")
	assert.Equal(t, Row{
		ScanID: 3, PatientID: 5, FilePath: "uploads/patient_scans/c.png", Status: "REPORT_READY",
		Prediction: "Pneumonia", Confidence: 0.95, Label: "Pneumonia",
		DoctorNotes: "Right lower lobe", PharmacistNotes: "Amoxicillin",
		CreatedAtMs: time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC).UnixMilli(),
	}, rows[2])

	verifiedRows := Rows(sample(), true)
	require.Len(t, verifiedRows, 1)
	assert.Equal(t, int64(3), verifiedRows[0].ScanID)
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.parquet")
	rows := Rows(sample(), false)

	require.NoError(t, WriteFile(path, rows))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
