// Package servicetest provides in-memory stores and collaborators for
// exercising the scan service layer without Postgres or NATS.
package servicetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/inference"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type Users struct {
	mu    sync.Mutex
	users map[int64]*models.User
	next  int64
}

func NewUsers() *Users {
	return &Users{users: map[int64]*models.User{}}
}

func (f *Users) CreateUser(_ context.Context, u models.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return 0, store.ErrDuplicateEmail
		}
	}
	f.next++
	u.ID = f.next
	f.users[u.ID] = &u
	return u.ID, nil
}

func (f *Users) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (f *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// Add stores a user with a low-cost hash of password.
func (f *Users) Add(t *testing.T, name, email, password string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := f.CreateUser(context.Background(), models.User{
		Name: name, Email: email, Password: string(hash), Role: role, IsActive: true,
	})
	require.NoError(t, err)
	u, _ := f.GetByID(context.Background(), id)
	return u
}

// Update mutates a stored user in place.
func (f *Users) Update(id int64, fn func(*models.User)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		fn(u)
	}
}

type Scans struct {
	mu    sync.Mutex
	scans map[int64]*models.Scan
	next  int64
}

func NewScans() *Scans {
	return &Scans{scans: map[int64]*models.Scan{}}
}

func (f *Scans) CreateScan(_ context.Context, patientID int64, filePath string) (*models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	now := time.Now()
	s := &models.Scan{ID: f.next, PatientID: patientID, FilePath: filePath,
		Status: models.StatusPendingAI, CreatedAt: now, UpdatedAt: now}
	f.scans[s.ID] = s
	c := *s
	return &c, nil
}

func (f *Scans) GetScanByID(_ context.Context, id int64) (*models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.scans[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (f *Scans) ListScans(_ context.Context, filter store.ScanFilter) ([]*models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Scan
	for _, s := range f.scans {
		if filter.PatientID != 0 && s.PatientID != filter.PatientID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, s.Status) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *Scans) Transition(_ context.Context, id int64, from []models.Status, upd store.ScanUpdate) (*models.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scans[id]
	if !ok || !containsStatus(from, s.Status) {
		return nil, store.ErrStatusChanged
	}
	apply(s, &upd)
	c := *s
	return &c, nil
}

func (f *Scans) ClaimPending(_ context.Context, limit int, fn func(*models.Scan) (*store.ScanUpdate, error)) ([]*models.Scan, error) {
	pending, _ := f.ListScans(context.Background(), store.ScanFilter{Statuses: []models.Status{models.StatusPendingAI}})
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	var updated []*models.Scan
	for _, p := range pending {
		upd, err := fn(p)
		if err != nil || upd == nil {
			continue
		}
		f.mu.Lock()
		s := f.scans[p.ID]
		apply(s, upd)
		c := *s
		f.mu.Unlock()
		updated = append(updated, &c)
	}
	return updated, nil
}

// Put overwrites a stored scan, for arranging test state.
func (f *Scans) Put(s *models.Scan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID > f.next {
		f.next = s.ID
	}
	c := *s
	f.scans[s.ID] = &c
}

func (f *Scans) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scans)
}

func apply(s *models.Scan, upd *store.ScanUpdate) {
	s.Status = upd.Status
	if upd.Prediction != nil {
		s.Prediction = upd.Prediction
	}
	if upd.Confidence != nil {
		s.Confidence = upd.Confidence
	}
	if upd.DoctorNotes != nil {
		s.DoctorNotes = upd.DoctorNotes
	}
	if upd.PharmacistNotes != nil {
		s.PharmacistNotes = upd.PharmacistNotes
	}
	if upd.RejectReason != nil {
		s.RejectReason = upd.RejectReason
	}
	s.UpdatedAt = time.Now()
}

func containsStatus(list []models.Status, st models.Status) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

type OTPs struct {
	mu      sync.Mutex
	records []*models.OTPRecord
}

func (f *OTPs) Replace(_ context.Context, email, otp string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if strings.EqualFold(r.Email, email) {
			r.Used = true
		}
	}
	f.records = append(f.records, &models.OTPRecord{
		ID: int64(len(f.records) + 1), Email: email, OTP: otp, CreatedAt: time.Now(), ExpiresAt: expiresAt,
	})
	return nil
}

func (f *OTPs) LatestUnused(_ context.Context, email, otp string) (*models.OTPRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		if strings.EqualFold(r.Email, email) && r.OTP == otp && !r.Used {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (f *OTPs) MarkUsed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.Used = true
		}
	}
	return nil
}

type Published struct {
	Subject string
	Type    string
	Data    json.RawMessage
}

// Publisher records every envelope; set Err to make Publish fail.
type Publisher struct {
	Err  error
	mu   sync.Mutex
	msgs []Published
}

func (f *Publisher) Publish(subject, msgType string, data interface{}) error {
	if f.Err != nil {
		return f.Err
	}
	raw, err := comm.Encode(msgType, data)
	if err != nil {
		return err
	}
	var msg comm.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, Published{Subject: subject, Type: msg.Type, Data: msg.Data})
	return nil
}

func (f *Publisher) OfType(msgType string) []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Published
	for _, m := range f.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type Tokens struct{}

func (Tokens) Issue(user *models.User, otpRequired bool) (string, error) {
	return fmt.Sprintf("token-%d-%s-%t", user.ID, user.Role, otpRequired), nil
}

type Classifier struct {
	Pred *inference.Prediction
	Err  error
}

func (f *Classifier) Classify(_ context.Context, _ string) (*inference.Prediction, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	p := *f.Pred
	return &p, nil
}

