package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/tom2984/aac-sub001/internal/database/testutil"
	"github.com/tom2984/aac-sub001/internal/models"
	"github.com/tom2984/aac-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func TestNewCleanerRequiresStores(t *testing.T) {
	_, err := NewCleaner(nil, nil)
	require.Error(t, err)
}

func TestExpireInvites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 10, 15, 0, 0, 0, time.UTC)

	stale := &models.InviteToken{TokenHash: "stale", Email: "stale@example.com", Role: models.RoleEmployee, ExpiresAt: now.Add(-time.Minute)}
	fresh := &models.InviteToken{TokenHash: "fresh", Email: "fresh@example.com", Role: models.RoleEmployee, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, st.Invites.Create(ctx, stale))
	require.NoError(t, st.Invites.Create(ctx, fresh))

	c, err := NewCleaner(st.Invites, st.Confirmations, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	count, err := c.ExpireInvites(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	got, err := st.Invites.FindByTokenHash(ctx, "stale")
	require.NoError(t, err)
	require.Equal(t, models.InviteExpired, got.Status)

	got, err = st.Invites.FindByTokenHash(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, models.InvitePending, got.Status)
}

func TestCleanerRunOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	longAgo := now.Add(-10 * 24 * time.Hour)

	require.NoError(t, st.Invites.Create(ctx, &models.InviteToken{
		TokenHash: "old-pending", Email: "a@example.com", Role: models.RoleEmployee, ExpiresAt: longAgo,
	}))
	require.NoError(t, st.Invites.Create(ctx, &models.InviteToken{
		TokenHash: "recent", Email: "b@example.com", Role: models.RoleEmployee, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, st.Confirmations.Create(ctx, &models.SignupConfirmationToken{
		TokenHash: "old-confirmation", Email: "c@example.com", ExpiresAt: longAgo,
	}))
	require.NoError(t, st.Confirmations.Create(ctx, &models.SignupConfirmationToken{
		TokenHash: "live-confirmation", Email: "d@example.com", ExpiresAt: now.Add(time.Hour),
	}))

	c, err := NewCleaner(st.Invites, st.Confirmations,
		WithNow(func() time.Time { return now }),
		WithTokenRetention(7*24*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, err)

	require.NoError(t, c.RunOnce(ctx))

	_, err = st.Invites.FindByTokenHash(ctx, "old-pending")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Invites.FindByTokenHash(ctx, "recent")
	require.NoError(t, err)

	_, err = st.Confirmations.FindByTokenHash(ctx, "old-confirmation")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Confirmations.FindByTokenHash(ctx, "live-confirmation")
	require.NoError(t, err)
}

func TestPurgeKeepsTokensInsideRetention(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, st.Confirmations.Create(ctx, &models.SignupConfirmationToken{
		TokenHash: "just-expired", Email: "e@example.com", ExpiresAt: now.Add(-time.Hour),
	}))

	c, err := NewCleaner(st.Invites, st.Confirmations, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	stats, err := c.PurgeTokens(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Confirmations)

	_, err = st.Confirmations.FindByTokenHash(ctx, "just-expired")
	require.NoError(t, err)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	st := newTestStore(t)
	c, err := NewCleaner(st.Invites, st.Confirmations, WithExpirySchedule("not a cron spec"))
	require.NoError(t, err)
	require.Error(t, c.Start())
}

func TestJobsRecordRunHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	c, err := NewCleaner(st.Invites, st.Confirmations, WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	require.Empty(t, c.Jobs())

	require.NoError(t, c.RunOnce(ctx))
	require.NoError(t, c.RunOnce(ctx))

	jobs := c.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, JobExpireInvites, jobs[0].Job)
	require.Equal(t, JobPurgeTokens, jobs[1].Job)
	for _, job := range jobs {
		require.Equal(t, uint64(2), job.TotalRuns)
		require.Zero(t, job.ConsecutiveFailures)
		require.Equal(t, now, job.LastRunAt)
	}
}

type stubPurger struct {
	before []time.Time
	err    error
}

func (p *stubPurger) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	p.before = append(p.before, before)
	if p.err != nil {
		return 0, p.err
	}
	return 3, nil
}

func TestRunOncePurgesRateCounters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	purger := &stubPurger{}

	c, err := NewCleaner(st.Invites, st.Confirmations,
		WithNow(func() time.Time { return now }),
		WithRateCounters(purger),
	)
	require.NoError(t, err)
	require.NoError(t, c.RunOnce(ctx))
	require.Equal(t, []time.Time{now}, purger.before)

	purger.err = errors.New("table locked")
	require.ErrorContains(t, c.RunOnce(ctx), "table locked")

	jobs := c.Jobs()
	require.Len(t, jobs, 3)
	require.Equal(t, JobPurgeCounters, jobs[1].Job)
	require.Equal(t, 1, jobs[1].ConsecutiveFailures)
	require.Contains(t, jobs[1].LastError, "table locked")
}
