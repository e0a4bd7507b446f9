package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		name       string
		confidence *float64
		prediction *string
		want       string
	}{
		{"normal is always low", ptr(0.99), ptr("Normal"), "Low"},
		{"no confidence", nil, ptr("Pneumonia"), "Unknown"},
		{"high", ptr(0.90), ptr("Pneumonia"), "High"},
		{"moderate", ptr(0.75), ptr("Pneumonia"), "Moderate"},
		{"low moderate", ptr(0.40), nil, "Low-Moderate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskLevel(tt.confidence, tt.prediction))
		})
	}
}

func TestConfidencePercent(t *testing.T) {
	assert.Equal(t, "N/A", ConfidencePercent(nil))
	assert.Equal(t, "91.23", ConfidencePercent(ptr(0.91234)))
	assert.Equal(t, "100.00", ConfidencePercent(ptr(1.0)))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Report_Scan_12_P000007.pdf", Filename(12, 7))
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := 0; i < 16; i++ {
		img.Set(i, i, color.White)
	}
	path := filepath.Join(dir, "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestBuildContext(t *testing.T) {
	now := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)
	scan := &models.Scan{
		ID:              42,
		PatientID:       7,
		Prediction:      ptr("Pneumonia"),
		Confidence:      ptr(0.93),
		DoctorNotes:     ptr("Consolidation in the right lower lobe."),
		PharmacistNotes: ptr("Amoxicillin 500mg"),
		Status:          models.StatusPharmacistCompleted,
		CreatedAt:       now.Add(-time.Hour),
	}
	patient := &models.User{ID: 7, Name: "Abebe", Email: "abebe@example.com"}

	ctx := BuildContext(scan, patient, writePNG(t, t.TempDir()), now)

	assert.Equal(t, "2025-00042", ctx.ReportID)
	assert.Equal(t, "09-03-2025", ctx.ReportDate)
	assert.Equal(t, "02:05 PM", ctx.ReportTime)
	assert.Equal(t, "000007", ctx.PatientID)
	assert.Equal(t, "01:05 PM", ctx.ScanTime)
	assert.Equal(t, "93.00", ctx.Confidence)
	assert.Equal(t, "High", ctx.RiskLevel)
	assert.Equal(t, "Amoxicillin 500mg", ctx.Prescription)
	assert.Equal(t, "Please follow the prescribed treatment plan.", ctx.Recommendations[2])
	assert.Equal(t, "PNG", ctx.ScanImageType)
	assert.NotEmpty(t, ctx.ScanImage)
}

func TestBuildContextDefaults(t *testing.T) {
	scan := &models.Scan{ID: 1, PatientID: 2, Prediction: ptr("Normal"), Status: models.StatusPharmacistCompleted}
	patient := &models.User{ID: 2}

	dir := t.TempDir()
	notImage := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(notImage, []byte("not an image"), 0o644))

	ctx := BuildContext(scan, patient, notImage, time.Now())

	assert.Equal(t, "—", ctx.PatientName)
	assert.Equal(t, "No findings recorded.", ctx.DoctorNotes)
	assert.Equal(t, "N/A", ctx.Confidence)
	assert.Equal(t, "Low", ctx.RiskLevel)
	assert.Equal(t, "No immediate treatment required.", ctx.Recommendations[2])
	assert.Nil(t, ctx.ScanImage)
	assert.Empty(t, ctx.ScanImageType)

	ctx = BuildContext(scan, patient, filepath.Join(dir, "missing.png"), time.Now())
	assert.Nil(t, ctx.ScanImage)
}

func TestRender(t *testing.T) {
	now := time.Now()
	scan := &models.Scan{
		ID:          3,
		PatientID:   4,
		Prediction:  ptr("Pneumonia"),
		Confidence:  ptr(0.81),
		DoctorNotes: ptr("Patchy opacity."),
		Status:      models.StatusPharmacistCompleted,
	}
	patient := &models.User{ID: 4, Name: "Sara", Email: "sara@example.com"}

	for name, imagePath := range map[string]string{
		"with image":    writePNG(t, t.TempDir()),
		"without image": "",
	} {
		t.Run(name, func(t *testing.T) {
			b, err := Render(BuildContext(scan, patient, imagePath, now))
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

			r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, r.NumPage(), 1)
		})
	}
}
