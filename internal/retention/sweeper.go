// Package retention runs the periodic cleanup policies: expiring unclaimed
// codes, archiving old approved posts and pruning reviewed profile changes.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/storage"
)

// Policy names.
const (
	PolicyFriendCodes    = "expired_friend_codes"
	PolicySchoolCodes    = "expired_school_codes"
	PolicyArchivePosts   = "archive_old_posts"
	PolicyProfileChanges = "reviewed_profile_changes"
)

// Result reports one policy's run.
type Result struct {
	Policy   string `json:"policy"`
	Affected int64  `json:"affected"`
	Err      error  `json:"-"`
}

// Store is the persistence surface the sweeper touches.
type Store interface {
	DeleteExpiredFriendCodes(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredSchoolCodes(ctx context.Context, now time.Time) (int64, error)
	ArchivePostsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteReviewedProfileChangesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ Store = storage.Store(nil)

// Config holds the sweep schedule and retention windows.
type Config struct {
	Interval               time.Duration
	PolicyTimeout          time.Duration
	PostArchiveAfter       time.Duration
	ProfileChangeRetention time.Duration
}

// Sweeper applies every retention policy on a fixed interval.
type Sweeper struct {
	store   Store
	locker  Locker
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// NewSweeper builds a sweeper. A nil locker falls back to a LocalLocker.
func NewSweeper(store Store, locker Locker, m *metrics.Metrics, cfg Config) *Sweeper {
	if locker == nil {
		locker = &LocalLocker{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.PolicyTimeout <= 0 {
		cfg.PolicyTimeout = time.Minute
	}
	if cfg.PostArchiveAfter <= 0 {
		cfg.PostArchiveAfter = 365 * 24 * time.Hour
	}
	if cfg.ProfileChangeRetention <= 0 {
		cfg.ProfileChangeRetention = 30 * 24 * time.Hour
	}
	return &Sweeper{store: store, locker: locker, metrics: m, cfg: cfg, now: time.Now}
}

// WithClock replaces the sweeper's time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

type policy struct {
	name string
	run  func(ctx context.Context, now time.Time) (int64, error)
}

func (s *Sweeper) policies() []policy {
	return []policy{
		{PolicyFriendCodes, s.store.DeleteExpiredFriendCodes},
		{PolicySchoolCodes, s.store.DeleteExpiredSchoolCodes},
		{PolicyArchivePosts, func(ctx context.Context, now time.Time) (int64, error) {
			return s.store.ArchivePostsBefore(ctx, now.Add(-s.cfg.PostArchiveAfter))
		}},
		{PolicyProfileChanges, func(ctx context.Context, now time.Time) (int64, error) {
			return s.store.DeleteReviewedProfileChangesBefore(ctx, now.Add(-s.cfg.ProfileChangeRetention))
		}},
	}
}

// RunOnce applies every policy and returns one result per policy. A failing
// policy does not stop the others. It returns nil results when another run
// holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) ([]Result, error) {
	release, ok, err := s.locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		log.Printf("[SWEEP] skipped: another run holds the lock")
		return nil, nil
	}
	defer release()

	now := s.now().UTC()
	results := make([]Result, 0, 4)
	for _, p := range s.policies() {
		res := s.runPolicy(ctx, p, now)
		if res.Err != nil {
			log.Printf("[SWEEP] policy=%s error=%v", res.Policy, res.Err)
		} else {
			log.Printf("[SWEEP] policy=%s affected=%d", res.Policy, res.Affected)
		}
		s.metrics.Swept(res.Policy, res.Affected, res.Err)
		results = append(results, res)
	}
	return results, nil
}

func (s *Sweeper) runPolicy(ctx context.Context, p policy, now time.Time) (res Result) {
	res.Policy = p.name
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PolicyTimeout)
	defer cancel()
	res.Affected, res.Err = p.run(ctx, now)
	return res
}

// Start schedules RunOnce every Interval until ctx is done. Runs never
// overlap within a process.
func (s *Sweeper) Start(ctx context.Context) (stop func(), err error) {
	logger := cron.VerbosePrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("[SWEEP] run failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	log.Printf("[SWEEP] scheduled %s", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return func() { <-c.Stop().Done() }, nil
}
