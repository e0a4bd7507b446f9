package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/report"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReportService(t *testing.T) (*ReportService, *servicetest.Scans, *servicetest.Users, *servicetest.Publisher, string) {
	t.Helper()
	scans := servicetest.NewScans()
	users := servicetest.NewUsers()
	pub := &servicetest.Publisher{}
	dir := filepath.Join(t.TempDir(), "reports")
	svc := NewReportService(scans, users, pub, dir)
	svc.render = func(c *report.Context) ([]byte, error) {
		return []byte("%PDF-fake " + c.ReportID + " " + c.ScanStatus), nil
	}
	svc.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	return svc, scans, users, pub, dir
}

func completedScan(id, patientID int64) *models.Scan {
	return &models.Scan{
		ID: id, PatientID: patientID, FilePath: "missing.png",
		Prediction: ptr("Pneumonia"), Confidence: ptr(0.91),
		DoctorNotes: ptr("Opacity"), PharmacistNotes: ptr("Amoxicillin"),
		Status: models.StatusPharmacistCompleted,
	}
}

func TestApprove(t *testing.T) {
	svc, scans, users, pub, dir := newReportService(t)
	ctx := context.Background()
	patient := users.Add(t, "Sara", "sara@example.com", "Patient123", models.RolePatient)
	scans.Put(completedScan(12, patient.ID))

	res, err := svc.Approve(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReportReady, res.Status)
	assert.Equal(t, "Report_Scan_12_P000001.pdf", res.Filename)

	data, err := os.ReadFile(filepath.Join(dir, res.Filename))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake 2025-00012 Report Ready", string(data))

	emails := pub.OfType(comm.TypeReportEmail)
	require.Len(t, emails, 1)
	var m comm.ReportEmail
	require.NoError(t, json.Unmarshal(emails[0].Data, &m))
	assert.Equal(t, comm.ReportEmail{ScanID: 12, Email: "sara@example.com", Name: "Sara", Filename: res.Filename}, m)
	assert.Len(t, pub.OfType(comm.TypeScanStatus), 1)

	_, err = svc.Approve(ctx, 12)
	assertCode(t, err, http.StatusBadRequest)
	assert.EqualError(t, err, "Report already approved.")
}

func TestApproveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown scan", func(t *testing.T) {
		svc, _, _, _, _ := newReportService(t)
		_, err := svc.Approve(ctx, 1)
		assert.ErrorIs(t, err, ErrScanNotFound)
	})

	t.Run("not completed", func(t *testing.T) {
		svc, scans, _, _, _ := newReportService(t)
		scans.Put(&models.Scan{ID: 1, PatientID: 1, Status: models.StatusDoctorVerified})
		_, err := svc.Approve(ctx, 1)
		assertCode(t, err, http.StatusBadRequest)
	})

	t.Run("patient missing", func(t *testing.T) {
		svc, scans, _, _, _ := newReportService(t)
		scans.Put(completedScan(1, 42))
		_, err := svc.Approve(ctx, 1)
		assert.ErrorIs(t, err, ErrPatientNotFound)
		assert.EqualError(t, err, "Patient record not found.")
	})

	t.Run("patient without email", func(t *testing.T) {
		svc, scans, users, _, _ := newReportService(t)
		p := users.Add(t, "NoMail", "nomail@example.com", "Patient123", models.RolePatient)
		users.Update(p.ID, func(u *models.User) { u.Email = "" })
		scans.Put(completedScan(1, p.ID))
		_, err := svc.Approve(ctx, 1)
		assertCode(t, err, http.StatusUnprocessableEntity)
		assert.EqualError(t, err, "Patient has no email address on file.")
	})

	t.Run("render failure leaves status", func(t *testing.T) {
		svc, scans, users, pub, _ := newReportService(t)
		p := users.Add(t, "Sara", "sara@example.com", "Patient123", models.RolePatient)
		scans.Put(completedScan(1, p.ID))
		svc.render = func(*report.Context) ([]byte, error) { return nil, errors.New("font missing") }

		_, err := svc.Approve(ctx, 1)
		assertCode(t, err, http.StatusInternalServerError)
		assert.Contains(t, err.Error(), "PDF generation failed")

		s, _ := scans.GetScanByID(ctx, 1)
		assert.Equal(t, models.StatusPharmacistCompleted, s.Status)
		assert.Empty(t, pub.OfType(comm.TypeReportEmail))
	})
}

func TestReject(t *testing.T) {
	svc, scans, users, pub, _ := newReportService(t)
	ctx := context.Background()
	p := users.Add(t, "Sara", "sara@example.com", "Patient123", models.RolePatient)
	scans.Put(&models.Scan{ID: 1, PatientID: p.ID, Status: models.StatusDoctorVerified})

	_, err := svc.Reject(ctx, 1, "blurry")
	assertCode(t, err, http.StatusBadRequest)

	scans.Put(completedScan(1, p.ID))
	scan, err := svc.Reject(ctx, 1, "  blurry image ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, scan.Status)
	assert.Equal(t, "blurry image", *scan.RejectReason)

	msgs := pub.OfType(comm.TypeRejectionEmail)
	require.Len(t, msgs, 1)
	var m comm.RejectionEmail
	require.NoError(t, json.Unmarshal(msgs[0].Data, &m))
	assert.Equal(t, "blurry image", m.Reason)

	_, err = svc.Approve(ctx, 1)
	assertCode(t, err, http.StatusBadRequest)
}

func TestReportPDF(t *testing.T) {
	svc, scans, users, _, dir := newReportService(t)
	ctx := context.Background()
	p := users.Add(t, "Sara", "sara@example.com", "Patient123", models.RolePatient)
	other := users.Add(t, "Abel", "abel@example.com", "Patient123", models.RolePatient)
	scans.Put(completedScan(5, p.ID))

	_, _, err := svc.ReportPDF(ctx, p.ID, models.RolePatient, 5)
	assertCode(t, err, http.StatusForbidden)
	_, _, err = svc.ReportPDF(ctx, p.ID, models.RolePatient, 6)
	assert.ErrorIs(t, err, ErrScanNotFound)

	_, err = svc.Approve(ctx, 5)
	require.NoError(t, err)

	data, name, err := svc.ReportPDF(ctx, p.ID, models.RolePatient, 5)
	require.NoError(t, err)
	assert.Equal(t, "Report_Scan_5_P000001.pdf", name)
	assert.Contains(t, string(data), "Report Ready")

	_, _, err = svc.ReportPDF(ctx, other.ID, models.RolePatient, 5)
	assert.ErrorIs(t, err, ErrAccessDenied)

	// regenerated when the stored copy is gone
	require.NoError(t, os.Remove(filepath.Join(dir, name)))
	data, _, err = svc.ReportPDF(ctx, 99, models.RoleDoctor, 5)
	require.NoError(t, err)
	assert.Contains(t, string(data), "%PDF-fake 2025-00005")
}

func TestStats(t *testing.T) {
	svc, scans, _, _, _ := newReportService(t)
	ctx := context.Background()
	for i := int64(1); i <= 25; i++ {
		st := models.StatusPendingAI
		if i%5 == 0 {
			st = models.StatusPharmacistCompleted
		}
		scans.Put(&models.Scan{ID: i, PatientID: 1, Status: st})
	}

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, st.Total)
	assert.Len(t, st.Recent, 20)
	assert.Equal(t, int64(25), st.Recent[0].ID)
	assert.Equal(t, 5, st.AwaitingApproval)
	assert.Equal(t, 4, st.ByStatus["PHARMACIST_COMPLETED"])
	assert.Equal(t, 16, st.ByStatus["PENDING_AI"])
}
