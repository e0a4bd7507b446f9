package ctlsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purger struct {
	before time.Time
	n      int64
	err    error
}

func (p *purger) Purge(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.n, p.err
}

type analyzer struct {
	limit int
	n     int
}

func (a *analyzer) AnalyzePending(_ context.Context, limit int) (int, error) {
	a.limit = limit
	return a.n, nil
}

func TestPurgeOTPs(t *testing.T) {
	p := &purger{n: 3}
	j := NewJobs(p, nil)
	now := time.Date(2025, 5, 2, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.PurgeOTPs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, now.Add(-24*time.Hour), p.before)

	p.err = errors.New("pg down")
	_, err = j.PurgeOTPs(context.Background())
	assert.EqualError(t, err, "pg down")
}

func TestAnalyzePending(t *testing.T) {
	a := &analyzer{n: 2}
	n, err := NewJobs(&purger{}, a).AnalyzePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, AnalyzeBatch, a.limit)
}

func TestNewScheduler(t *testing.T) {
	j := NewJobs(&purger{}, &analyzer{})

	c, err := j.NewScheduler(Schedules{OTPPurge: DefaultPurgeSchedule})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	c, err = j.NewScheduler(Schedules{OTPPurge: "*/5 * * * *", AutoAnalyze: "@every 1m"})
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	_, err = j.NewScheduler(Schedules{OTPPurge: "whenever"})
	assert.Error(t, err)

	_, err = NewJobs(&purger{}, nil).NewScheduler(Schedules{OTPPurge: DefaultPurgeSchedule, AutoAnalyze: "@every 1m"})
	assert.Error(t, err)
}

func TestSchedulesFromEnv(t *testing.T) {
	t.Setenv("OTP_PURGE_SCHEDULE", "")
	t.Setenv("AUTO_ANALYZE_SCHEDULE", "")
	assert.Equal(t, Schedules{OTPPurge: DefaultPurgeSchedule}, SchedulesFromEnv())

	t.Setenv("AUTO_ANALYZE_SCHEDULE", "@every 30s")
	assert.Equal(t, "@every 30s", SchedulesFromEnv().AutoAnalyze)
}
