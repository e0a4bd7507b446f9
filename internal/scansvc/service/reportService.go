package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/report"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	log "github.com/sirupsen/logrus"
)

const statsWindow = 20

// ReportService covers the admin side of the workflow: approval,
// rejection and report delivery.
type ReportService struct {
	scans      ScanStore
	users      UserStore
	pub        Publisher
	reportsDir string
	render     func(*report.Context) ([]byte, error)
	now        func() time.Time
}

func NewReportService(scans ScanStore, users UserStore, pub Publisher, reportsDir string) *ReportService {
	return &ReportService{
		scans:      scans,
		users:      users,
		pub:        pub,
		reportsDir: reportsDir,
		render:     report.Render,
		now:        time.Now,
	}
}

type ApproveResult struct {
	Message  string        `json:"message"`
	ScanID   int64         `json:"scan_id"`
	Status   models.Status `json:"status"`
	Filename string        `json:"filename"`
}

type Stats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	AwaitingApproval int            `json:"awaiting_approval"`
	Recent           []*models.Scan `json:"recent"`
}

func (s *ReportService) AdminPending(ctx context.Context) ([]*models.Scan, error) {
	return s.scans.ListScans(ctx, store.ScanFilter{Statuses: []models.Status{models.StatusPharmacistCompleted}})
}

// Stats summarises the most recent scans for the admin dashboard.
func (s *ReportService) Stats(ctx context.Context) (*Stats, error) {
	recent, err := s.scans.ListScans(ctx, store.ScanFilter{Limit: statsWindow})
	if err != nil {
		return nil, err
	}
	pending, err := s.AdminPending(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Total:            len(recent),
		ByStatus:         map[string]int{},
		AwaitingApproval: len(pending),
		Recent:           recent,
	}
	for _, scan := range recent {
		st.ByStatus[string(scan.Status)]++
	}
	return st, nil
}

// Approve renders the report, stores it under the reports dir and only
// then marks the scan REPORT_READY. The patient email is queued last.
func (s *ReportService) Approve(ctx context.Context, id int64) (*ApproveResult, error) {
	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrScanNotFound
	}
	if scan.Status == models.StatusReportReady {
		return nil, newError(http.StatusBadRequest, "Report already approved.")
	}
	if !scan.Status.Allows(models.ActionApprove) {
		return nil, newError(http.StatusBadRequest,
			"Scan must be completed by a pharmacist before approval. Current status: %s", scan.Status)
	}

	patient, err := s.users.GetByID(ctx, scan.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrPatientNotFound
	}
	if strings.TrimSpace(patient.Email) == "" {
		return nil, newError(http.StatusUnprocessableEntity, "Patient has no email address on file.")
	}

	rc := report.BuildContext(scan, patient, filepath.FromSlash(scan.FilePath), s.now())
	rc.ScanStatus = models.StatusReportReady.Label()
	pdf, err := s.render(rc)
	if err != nil {
		log.Errorf("[ReportService.Approve] scan %d: %s", id, err)
		return nil, newError(http.StatusInternalServerError, "PDF generation failed: %s", err)
	}

	filename := report.Filename(scan.ID, patient.ID)
	if err := s.store(filename, pdf); err != nil {
		log.Errorf("[ReportService.Approve] scan %d: %s", id, err)
		return nil, newError(http.StatusInternalServerError, "Failed to store report: %s", err)
	}

	updated, err := applyTransition(ctx, s.scans, s.pub, id, models.ActionApprove, store.ScanUpdate{})
	if err != nil {
		return nil, err
	}

	err = publishMail(s.pub, comm.TypeReportEmail, comm.ReportEmail{
		ScanID:   updated.ID,
		Email:    patient.Email,
		Name:     patient.Name,
		Filename: filename,
	})
	if err != nil {
		log.Errorf("[ReportService.Approve] publish report email for scan %d: %s", id, err)
	}

	return &ApproveResult{
		Message:  "Report approved and sent to patient",
		ScanID:   updated.ID,
		Status:   updated.Status,
		Filename: filename,
	}, nil
}

// Reject closes a completed scan without a report and notifies the
// patient when an email is on file.
func (s *ReportService) Reject(ctx context.Context, id int64, reason string) (*models.Scan, error) {
	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrScanNotFound
	}
	if !scan.Status.Allows(models.ActionReject) {
		return nil, newError(http.StatusBadRequest, "Only scans completed by a pharmacist can be rejected")
	}

	upd := store.ScanUpdate{}
	reason = strings.TrimSpace(reason)
	if reason != "" {
		upd.RejectReason = &reason
	}
	updated, err := applyTransition(ctx, s.scans, s.pub, id, models.ActionReject, upd)
	if err != nil {
		return nil, err
	}

	patient, err := s.users.GetByID(ctx, updated.PatientID)
	if err != nil || patient == nil || patient.Email == "" {
		log.Warnf("[ReportService.Reject] no rejection email for scan %d: patient unavailable", id)
		return updated, nil
	}
	err = publishMail(s.pub, comm.TypeRejectionEmail, comm.RejectionEmail{
		ScanID: updated.ID,
		Email:  patient.Email,
		Name:   patient.Name,
		Reason: reason,
	})
	if err != nil {
		log.Errorf("[ReportService.Reject] publish rejection email for scan %d: %s", id, err)
	}
	return updated, nil
}

// ReportPDF returns the stored report of a REPORT_READY scan, rendering
// it again when the stored copy is gone. Patients only get their own.
func (s *ReportService) ReportPDF(ctx context.Context, callerID int64, callerRole models.Role, id int64) ([]byte, string, error) {
	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if scan == nil {
		return nil, "", ErrScanNotFound
	}
	if scan.Status != models.StatusReportReady {
		return nil, "", newError(http.StatusForbidden, "Report is not available yet")
	}
	if callerRole == models.RolePatient && scan.PatientID != callerID {
		return nil, "", ErrAccessDenied
	}

	patient, err := s.users.GetByID(ctx, scan.PatientID)
	if err != nil {
		return nil, "", err
	}
	if patient == nil {
		return nil, "", ErrPatientNotFound
	}

	filename := report.Filename(scan.ID, patient.ID)
	if data, err := os.ReadFile(filepath.Join(s.reportsDir, filename)); err == nil {
		return data, filename, nil
	}

	data, err := s.render(report.BuildContext(scan, patient, filepath.FromSlash(scan.FilePath), s.now()))
	if err != nil {
		log.Errorf("[ReportService.ReportPDF] scan %d: %s", id, err)
		return nil, "", newError(http.StatusInternalServerError, "PDF generation failed: %s", err)
	}
	if err := s.store(filename, data); err != nil {
		log.Warnf("[ReportService.ReportPDF] could not cache report for scan %d: %s", id, err)
	}
	return data, filename, nil
}

func (s *ReportService) store(filename string, data []byte) error {
	if err := os.MkdirAll(s.reportsDir, 0755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	return os.WriteFile(filepath.Join(s.reportsDir, filename), data, 0644)
}
