package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/logger"
)

const (
	defaultTokenRetention = 30 * 24 * time.Hour
	defaultExpirySpec     = "@hourly"
	defaultPurgeSpec      = "@daily"

	JobExpireInvites = "expire_invites"
	JobPurgeTokens   = "purge_tokens"
	JobPurgeCounters = "purge_rate_counters"
)

// CounterPurger removes rate-limit counters whose window has closed.
type CounterPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// JobStatus summarises the run history of one maintenance job.
type JobStatus struct {
	Job                 string    `json:"job"`
	TotalRuns           uint64    `json:"total_runs"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// Cleaner coordinates background maintenance of the token tables: flipping stale
// pending invites to expired and purging long-dead tokens.
type Cleaner struct {
	invites       store.InviteStore
	confirmations store.ConfirmationStore
	counters      CounterPurger
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     time.Duration

	expirySchedule string
	purgeSchedule  string

	mu   sync.Mutex
	jobs map[string]*JobStatus
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetention adjusts how long expired or consumed tokens are kept.
func WithTokenRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithExpirySchedule overrides the cron specification for invite expiry.
func WithExpirySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.expirySchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for token purging.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// WithRateCounters enables purging of closed rate-limit windows alongside the token purge.
func WithRateCounters(p CounterPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.counters = p
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(invites store.InviteStore, confirmations store.ConfirmationStore, opts ...Option) (*Cleaner, error) {
	if invites == nil || confirmations == nil {
		return nil, errors.New("maintenance: token stores are required")
	}

	cleaner := &Cleaner{
		invites:        invites,
		confirmations:  confirmations,
		now:            time.Now,
		retention:      defaultTokenRetention,
		expirySchedule: defaultExpirySpec,
		purgeSchedule:  defaultPurgeSpec,
		log:            logger.WithModule("maintenance"),
		jobs:           make(map[string]*JobStatus),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner, nil
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.expirySchedule, func() {
		if _, err := c.ExpireInvites(context.Background()); err != nil {
			c.log.Warn("invite expiry failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule invite expiry: %w", err)
	}

	if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
		if _, err := c.PurgeTokens(context.Background()); err != nil {
			c.log.Warn("token purge failed", zap.Error(err))
		}
		if c.counters != nil {
			if _, err := c.PurgeRateCounters(context.Background()); err != nil {
				c.log.Warn("rate counter purge failed", zap.Error(err))
			}
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule token purge: %w", err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially, collecting every failure.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if _, err := c.ExpireInvites(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.PurgeTokens(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.counters != nil {
		if _, err := c.PurgeRateCounters(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// ExpireInvites flips pending invites past their expiry to expired. Verification
// computes expiry on its own; this keeps the stored status truthful for listings.
func (c *Cleaner) ExpireInvites(ctx context.Context) (count int64, err error) {
	defer func() { c.record(JobExpireInvites, err) }()

	count, err = c.invites.ExpireStale(ctx, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("maintenance: expire invites: %w", err)
	}
	if count > 0 {
		c.log.Info("expired stale invites", zap.Int64("count", count))
	}
	return count, nil
}

// TokenPurgeStats captures the number of records removed for each token type.
type TokenPurgeStats struct {
	Invites       int64
	Confirmations int64
}

// PurgeTokens deletes tokens whose expiry lies further back than the retention
// window. Pending invites are kept until ExpireInvites has flipped them.
func (c *Cleaner) PurgeTokens(ctx context.Context) (TokenPurgeStats, error) {
	stats, err := c.purgeTokens(ctx)
	c.record(JobPurgeTokens, err)
	return stats, err
}

func (c *Cleaner) purgeTokens(ctx context.Context) (TokenPurgeStats, error) {
	cutoff := c.now().UTC().Add(-c.retention)
	stats := TokenPurgeStats{}

	var errs error
	invites, err := c.invites.PurgeBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("maintenance: purge invites: %w", err))
	}
	stats.Invites = invites

	confirmations, err := c.confirmations.PurgeBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("maintenance: purge confirmations: %w", err))
	}
	stats.Confirmations = confirmations

	if stats.Invites+stats.Confirmations > 0 {
		c.log.Info("purged old tokens",
			zap.Int64("invites", stats.Invites),
			zap.Int64("confirmations", stats.Confirmations),
		)
	}
	return stats, errs
}

// PurgeRateCounters deletes rate-limit counters whose window closed before now.
func (c *Cleaner) PurgeRateCounters(ctx context.Context) (count int64, err error) {
	defer func() { c.record(JobPurgeCounters, err) }()

	if c.counters == nil {
		return 0, nil
	}
	count, err = c.counters.PurgeExpired(ctx, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("maintenance: purge rate counters: %w", err)
	}
	if count > 0 {
		c.log.Debug("purged rate counters", zap.Int64("count", count))
	}
	return count, nil
}

// Jobs reports the run history of every job that has run at least once, ordered by name.
func (c *Cleaner) Jobs() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobStatus, 0, len(c.jobs))
	for _, job := range c.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (c *Cleaner) record(job string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.jobs[job]
	if !ok {
		status = &JobStatus{Job: job}
		c.jobs[job] = status
	}
	status.TotalRuns++
	status.LastRunAt = c.now().UTC()
	if err != nil {
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		return
	}
	status.ConsecutiveFailures = 0
	status.LastError = ""
}
