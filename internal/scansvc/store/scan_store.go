package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avvvet/csss-services/internal/scansvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScanStore struct {
	db *pgxpool.Pool
}

func NewScanStore(db *pgxpool.Pool) *ScanStore {
	return &ScanStore{db: db}
}

// ScanFilter narrows ListScans. Zero values mean "any".
type ScanFilter struct {
	PatientID int64
	Statuses  []models.Status
	Limit     int
}

// ScanUpdate carries the columns a transition writes. Nil fields keep
// their current value.
type ScanUpdate struct {
	Status          models.Status
	Prediction      *string
	Confidence      *float64
	DoctorNotes     *string
	PharmacistNotes *string
	RejectReason    *string
}

const scanColumns = `id, patient_id, file_path, prediction, confidence, doctor_notes,
	pharmacist_notes, reject_reason, status, created_at, updated_at`

func (s *ScanStore) CreateScan(ctx context.Context, patientID int64, filePath string) (*models.Scan, error) {
	query := `
		INSERT INTO scans (patient_id, file_path, status)
		VALUES ($1, $2, $3)
		RETURNING ` + scanColumns

	scan, err := scanScan(s.db.QueryRow(ctx, query, patientID, filePath, models.StatusPendingAI))
	if err != nil {
		return nil, fmt.Errorf("failed to create scan: %w", err)
	}
	return scan, nil
}

// GetScanByID returns nil, nil when the scan does not exist.
func (s *ScanStore) GetScanByID(ctx context.Context, id int64) (*models.Scan, error) {
	scan, err := scanScan(s.db.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan by ID: %w", err)
	}
	return scan, nil
}

// ListScans returns scans newest first.
func (s *ScanStore) ListScans(ctx context.Context, f ScanFilter) ([]*models.Scan, error) {
	query, args := listScansQuery(f)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := []*models.Scan{}
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return scans, nil
}

// Transition applies upd only while the scan is still in one of the from
// statuses, so two reviewers racing on the same scan cannot both win.
// ErrStatusChanged is returned when no row matched.
func (s *ScanStore) Transition(ctx context.Context, id int64, from []models.Status, upd ScanUpdate) (*models.Scan, error) {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	query := `
		UPDATE scans
		SET status           = $3,
		    prediction       = COALESCE($4, prediction),
		    confidence       = COALESCE($5, confidence),
		    doctor_notes     = COALESCE($6, doctor_notes),
		    pharmacist_notes = COALESCE($7, pharmacist_notes),
		    reject_reason    = COALESCE($8, reject_reason),
		    updated_at       = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + scanColumns

	scan, err := scanScan(s.db.QueryRow(ctx, query, id, statuses, upd.Status,
		upd.Prediction, upd.Confidence, upd.DoctorNotes, upd.PharmacistNotes, upd.RejectReason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("failed to update scan %d: %w", id, err)
	}
	return scan, nil
}

// ClaimPending locks up to limit PENDING_AI scans, skipping rows other
// controllers hold, and hands each to fn inside the same transaction.
// Scans fn returns an update for are transitioned; the rest stay pending.
func (s *ScanStore) ClaimPending(ctx context.Context, limit int, fn func(*models.Scan) (*ScanUpdate, error)) ([]*models.Scan, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+scanColumns+`
		FROM scans
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, models.StatusPendingAI, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending scans: %w", err)
	}

	var candidates []*models.Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, scan)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	var updated []*models.Scan
	for _, c := range candidates {
		upd, err := fn(c)
		if err != nil || upd == nil {
			continue
		}

		scan, err := scanScan(tx.QueryRow(ctx, `
			UPDATE scans
			SET status = $2, prediction = $3, confidence = $4, updated_at = now()
			WHERE id = $1
			RETURNING `+scanColumns, c.ID, upd.Status, upd.Prediction, upd.Confidence))
		if err != nil {
			return nil, fmt.Errorf("update scan %d: %w", c.ID, err)
		}
		updated = append(updated, scan)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// listScansQuery numbers placeholders in the order filters are added.
func listScansQuery(f ScanFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)

	if f.PatientID > 0 {
		args = append(args, f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + scanColumns + ` FROM scans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func scanScan(row pgx.Row) (*models.Scan, error) {
	scan := &models.Scan{}
	err := row.Scan(
		&scan.ID,
		&scan.PatientID,
		&scan.FilePath,
		&scan.Prediction,
		&scan.Confidence,
		&scan.DoctorNotes,
		&scan.PharmacistNotes,
		&scan.RejectReason,
		&scan.Status,
		&scan.CreatedAt,
		&scan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return scan, nil
}
