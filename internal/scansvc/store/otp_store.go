package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OTPStore struct {
	db *pgxpool.Pool
}

func NewOTPStore(db *pgxpool.Pool) *OTPStore {
	return &OTPStore{db: db}
}

// Replace marks every unused code for email as used and stores a new one.
func (s *OTPStore) Replace(ctx context.Context, email, otp string, expiresAt time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE otp_records SET used = TRUE
		WHERE lower(email) = lower($1) AND used = FALSE
	`, email); err != nil {
		return fmt.Errorf("invalidate otp records: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO otp_records (email, otp, expires_at)
		VALUES ($1, $2, $3)
	`, email, otp, expiresAt); err != nil {
		return fmt.Errorf("insert otp record: %w", err)
	}

	return tx.Commit(ctx)
}

// LatestUnused returns nil, nil when no unused record matches.
func (s *OTPStore) LatestUnused(ctx context.Context, email, otp string) (*models.OTPRecord, error) {
	rec := &models.OTPRecord{}
	err := s.db.QueryRow(ctx, `
		SELECT id, email, otp, created_at, expires_at, used
		FROM otp_records
		WHERE lower(email) = lower($1) AND otp = $2 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, email, otp).Scan(&rec.ID, &rec.Email, &rec.OTP, &rec.CreatedAt, &rec.ExpiresAt, &rec.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get otp record: %w", err)
	}
	return rec, nil
}

func (s *OTPStore) MarkUsed(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE otp_records SET used = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark otp %d used: %w", id, err)
	}
	return nil
}

// Purge deletes records that were used or expired before the cutoff.
func (s *OTPStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM otp_records
		WHERE (used = TRUE AND created_at < $1) OR expires_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("purge otp records: %w", err)
	}
	return tag.RowsAffected(), nil
}
