package ctlsvc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPurgeSchedule = "@every 10m"
	AnalyzeBatch         = 10
	otpRetention         = 24 * time.Hour
	jobTimeout           = 5 * time.Minute
)

type OTPPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type PendingAnalyzer interface {
	AnalyzePending(ctx context.Context, limit int) (int, error)
}

type Schedules struct {
	OTPPurge    string
	AutoAnalyze string // empty disables auto analysis
}

func SchedulesFromEnv() Schedules {
	s := Schedules{
		OTPPurge:    os.Getenv("OTP_PURGE_SCHEDULE"),
		AutoAnalyze: os.Getenv("AUTO_ANALYZE_SCHEDULE"),
	}
	if s.OTPPurge == "" {
		s.OTPPurge = DefaultPurgeSchedule
	}
	return s
}

type Jobs struct {
	otps     OTPPurger
	analyzer PendingAnalyzer
	now      func() time.Time
}

// analyzer may be nil when auto analysis is off.
func NewJobs(otps OTPPurger, analyzer PendingAnalyzer) *Jobs {
	return &Jobs{otps: otps, analyzer: analyzer, now: time.Now}
}

func (j *Jobs) PurgeOTPs(ctx context.Context) (int64, error) {
	n, err := j.otps.Purge(ctx, j.now().Add(-otpRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Jobs.PurgeOTPs] removed %d otp records", n)
	}
	return n, nil
}

func (j *Jobs) AnalyzePending(ctx context.Context) (int, error) {
	n, err := j.analyzer.AnalyzePending(ctx, AnalyzeBatch)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Jobs.AnalyzePending] analysed %d scans", n)
	}
	return n, nil
}

func (j *Jobs) run(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Errorf("[%s] %s", name, err)
		}
	}
}

// NewScheduler registers the jobs. Runs of the same job never overlap.
func (j *Jobs) NewScheduler(s Schedules) (*cron.Cron, error) {
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(s.OTPPurge, j.run("otp-purge", func(ctx context.Context) error {
		_, err := j.PurgeOTPs(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_PURGE_SCHEDULE %q: %w", s.OTPPurge, err)
	}

	if s.AutoAnalyze != "" {
		if j.analyzer == nil {
			return nil, fmt.Errorf("AUTO_ANALYZE_SCHEDULE set without a classifier")
		}
		_, err := c.AddFunc(s.AutoAnalyze, j.run("auto-analyze", func(ctx context.Context) error {
			_, err := j.AnalyzePending(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("invalid AUTO_ANALYZE_SCHEDULE %q: %w", s.AutoAnalyze, err)
		}
	}
	return c, nil
}
