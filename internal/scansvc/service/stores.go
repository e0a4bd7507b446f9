package service

import (
	"context"
	"time"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/store"
)

// The services depend on these instead of the pgx stores so they can be
// exercised against in-memory fakes.

type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type ScanStore interface {
	CreateScan(ctx context.Context, patientID int64, filePath string) (*models.Scan, error)
	GetScanByID(ctx context.Context, id int64) (*models.Scan, error)
	ListScans(ctx context.Context, f store.ScanFilter) ([]*models.Scan, error)
	Transition(ctx context.Context, id int64, from []models.Status, upd store.ScanUpdate) (*models.Scan, error)
	ClaimPending(ctx context.Context, limit int, fn func(*models.Scan) (*store.ScanUpdate, error)) ([]*models.Scan, error)
}

type OTPStore interface {
	Replace(ctx context.Context, email, otp string, expiresAt time.Time) error
	LatestUnused(ctx context.Context, email, otp string) (*models.OTPRecord, error)
	MarkUsed(ctx context.Context, id int64) error
}

// Publisher puts an envelope of msgType on a NATS subject.
type Publisher interface {
	Publish(subject, msgType string, data interface{}) error
}

type TokenIssuer interface {
	Issue(user *models.User, otpRequired bool) (string, error)
}
