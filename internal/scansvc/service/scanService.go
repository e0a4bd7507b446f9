package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/inference"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type ScanService struct {
	scans      ScanStore
	classifier inference.Classifier
	pub        Publisher
	uploadDir  string
	maxUpload  int64
}

func NewScanService(scans ScanStore, classifier inference.Classifier, pub Publisher, uploadDir string, maxUpload int64) *ScanService {
	return &ScanService{
		scans:      scans,
		classifier: classifier,
		pub:        pub,
		uploadDir:  uploadDir,
		maxUpload:  maxUpload,
	}
}

// Upload stores the image under the upload dir with a random name and
// opens a PENDING_AI scan for the patient.
func (s *ScanService) Upload(ctx context.Context, patientID int64, filename string, r io.Reader) (*models.Scan, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return nil, newError(http.StatusBadRequest, "Unsupported file type '%s'. Allowed: jpg, jpeg, png", ext)
	}

	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+ext)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxUpload+1))
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if n > s.maxUpload {
		os.Remove(path)
		return nil, newError(http.StatusBadRequest, "File too large. Maximum size is %d MB", s.maxUpload>>20)
	}
	if n == 0 {
		os.Remove(path)
		return nil, newError(http.StatusBadRequest, "Uploaded file is empty")
	}

	scan, err := s.scans.CreateScan(ctx, patientID, filepath.ToSlash(path))
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	log.Infof("[ScanService.Upload] scan %d uploaded by patient %d", scan.ID, patientID)

	publishStatus(s.pub, scan)
	return scan, nil
}

func (s *ScanService) MyScans(ctx context.Context, patientID int64) ([]*models.Scan, error) {
	return s.scans.ListScans(ctx, store.ScanFilter{PatientID: patientID})
}

// PatientScans lists a patient's scans. Patients may only list their own.
// A zero filter would mean every patient, so ids must be positive.
func (s *ScanService) PatientScans(ctx context.Context, callerID int64, callerRole models.Role, patientID int64) ([]*models.Scan, error) {
	if patientID <= 0 {
		return nil, ErrInvalidPatient
	}
	if callerRole == models.RolePatient && callerID != patientID {
		return nil, ErrAccessDenied
	}
	return s.scans.ListScans(ctx, store.ScanFilter{PatientID: patientID})
}

// DoctorQueue is every scan, newest first.
func (s *ScanService) DoctorQueue(ctx context.Context) ([]*models.Scan, error) {
	return s.scans.ListScans(ctx, store.ScanFilter{})
}

func (s *ScanService) PharmacistQueue(ctx context.Context) ([]*models.Scan, error) {
	return s.scans.ListScans(ctx, store.ScanFilter{Statuses: []models.Status{models.StatusDoctorVerified}})
}

// Analyze runs the classifier on a scan and records the label.
func (s *ScanService) Analyze(ctx context.Context, id int64) (*models.Scan, *inference.Prediction, error) {
	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if scan == nil {
		return nil, nil, ErrScanNotFound
	}
	if _, err := os.Stat(filepath.FromSlash(scan.FilePath)); err != nil {
		return nil, nil, newError(http.StatusBadRequest, "Scan file not found on disk")
	}
	if !scan.Status.Allows(models.ActionAnalyze) {
		return nil, nil, newError(http.StatusBadRequest, "Scan cannot be analysed in status %s", scan.Status)
	}

	pred, err := s.classifier.Classify(ctx, filepath.FromSlash(scan.FilePath))
	if err != nil {
		if errors.Is(err, inference.ErrInvalidInput) {
			return nil, nil, newError(http.StatusBadRequest, "%s", err)
		}
		log.Errorf("[ScanService.Analyze] scan %d: %s", id, err)
		return nil, nil, newError(http.StatusBadGateway, "AI inference failed: %s", err)
	}

	updated, err := applyTransition(ctx, s.scans, s.pub, id, models.ActionAnalyze, store.ScanUpdate{
		Prediction: &pred.Label,
		Confidence: &pred.Confidence,
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, pred, nil
}

// AnalyzePending classifies up to limit PENDING_AI scans. Scans the
// classifier fails on stay pending for the next run.
func (s *ScanService) AnalyzePending(ctx context.Context, limit int) (int, error) {
	analyzed, err := s.scans.ClaimPending(ctx, limit, func(scan *models.Scan) (*store.ScanUpdate, error) {
		pred, err := s.classifier.Classify(ctx, filepath.FromSlash(scan.FilePath))
		if err != nil {
			log.Warnf("[ScanService.AnalyzePending] scan %d left pending: %s", scan.ID, err)
			return nil, nil
		}
		return &store.ScanUpdate{
			Status:     models.ActionAnalyze.Target(),
			Prediction: &pred.Label,
			Confidence: &pred.Confidence,
		}, nil
	})
	if err != nil {
		return 0, err
	}

	for _, scan := range analyzed {
		publishStatus(s.pub, scan)
	}
	return len(analyzed), nil
}

func (s *ScanService) Verify(ctx context.Context, id int64, notes string) (*models.Scan, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, newError(http.StatusBadRequest, "Clinical notes are required")
	}

	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrScanNotFound
	}
	if !scan.Status.Allows(models.ActionVerify) {
		return nil, newError(http.StatusBadRequest, "Scan must be AI-analysed before verification")
	}

	return applyTransition(ctx, s.scans, s.pub, id, models.ActionVerify, store.ScanUpdate{DoctorNotes: &notes})
}

// Complete records the prescription and tells the staff a report is
// waiting for approval.
func (s *ScanService) Complete(ctx context.Context, id int64, notes string) (*models.Scan, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, newError(http.StatusBadRequest, "Prescription notes are required")
	}

	scan, err := s.scans.GetScanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, ErrScanNotFound
	}
	if !scan.Status.Allows(models.ActionComplete) {
		return nil, newError(http.StatusBadRequest, "Scan must be verified by a doctor before completion")
	}

	updated, err := applyTransition(ctx, s.scans, s.pub, id, models.ActionComplete, store.ScanUpdate{PharmacistNotes: &notes})
	if err != nil {
		return nil, err
	}

	err = publishMail(s.pub, comm.TypeReportPending, comm.ReportPending{
		ScanID:     updated.ID,
		PatientID:  updated.PatientID,
		Prediction: updated.PredictionOr("Unknown"),
	})
	if err != nil {
		log.Errorf("[ScanService.Complete] publish report pending for scan %d: %s", id, err)
	}
	return updated, nil
}

// applyTransition moves a scan along action while it is still in one of
// the action's source statuses, then publishes the new status.
func applyTransition(ctx context.Context, scans ScanStore, pub Publisher, id int64, action models.Action, upd store.ScanUpdate) (*models.Scan, error) {
	upd.Status = action.Target()
	scan, err := scans.Transition(ctx, id, action.From(), upd)
	if err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return nil, ErrScanChanged
		}
		return nil, err
	}
	log.Infof("[%s] scan %d is now %s", action, scan.ID, scan.Status)
	publishStatus(pub, scan)
	return scan, nil
}
