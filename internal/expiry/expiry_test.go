package expiry

import (
	"context"
	"testing"
	"time"

	"queue-warden/internal/jobs"
	"queue-warden/internal/metrics"
	"queue-warden/internal/moderation"
	"queue-warden/internal/moderation/guildtest"
	"queue-warden/internal/modules/audit"
	"queue-warden/internal/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	reconciler *Reconciler
	store      *storage.Store
	guild      *guildtest.Guild
	metrics    *metrics.Collector
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	guild := guildtest.New(
		moderation.Role{ID: "managed", Position: 1, Managed: true},
		moderation.Role{ID: "b", Position: 2},
		moderation.Role{ID: "banned", Position: 3},
		moderation.Role{ID: "member", Position: 1},
	)

	logger := zap.NewNop()
	collector := metrics.New()
	engine := moderation.New(moderation.Config{
		BannedRoleID: "banned",
		FrozenRoleID: "frozen",
		MemberRoleID: "member",
	}, store, guild, audit.NewLogger(store, logger, "g1"), collector, logger)

	now := time.Unix(1_700_000_000, 0)
	reconciler := New(Config{ServerInterval: time.Hour, ScrimInterval: time.Hour}, store, guild, engine, collector, logger)
	reconciler.WithClock(fixedClock{now: now})

	return &fixture{reconciler: reconciler, store: store, guild: guild, metrics: collector, now: now}
}

func TestServerCycleLiftsOnlyBannedDueRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: "due-banned", UnbanAt: f.now.Add(-time.Minute)}))
	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: "due-missing", UnbanAt: f.now.Add(-time.Minute)}))
	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: "later", UnbanAt: f.now.Add(time.Hour)}))
	f.guild.AddBan(moderation.BanEntry{UserID: "due-banned", Tag: "a#1"})
	f.guild.AddBan(moderation.BanEntry{UserID: "later", Tag: "b#1"})

	result := f.reconciler.ServerCycle(ctx)
	require.Equal(t, CycleResult{Due: 2, Reversed: 1, Skipped: 1}, result)
	require.False(t, f.guild.IsBanned("due-banned"))
	require.True(t, f.guild.IsBanned("later"))

	rows, err := f.store.ListScheduledUnbans(ctx)
	require.NoError(t, err)
	var ids []string
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	require.ElementsMatch(t, []string{"due-missing", "later"}, ids)
	require.InDelta(t, 1, testutil.ToFloat64(f.metrics.ReversedCounter.WithLabelValues(LoopServer)), 0)
}

func TestServerCycleBanListFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: "u1", UnbanAt: f.now}))
	f.guild.AddBan(moderation.BanEntry{UserID: "u1"})
	f.guild.FailBans = guildtest.ErrInjected

	result := f.reconciler.ServerCycle(ctx)
	require.Equal(t, CycleResult{Due: 1, Failed: 1}, result)

	_, ok, err := f.store.GetScheduledUnban(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestScrimCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: "present", UnbanAt: f.now.Add(-time.Second), SavedRoles: []string{"b"}}))
	require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: "absent", UnbanAt: f.now.Add(-time.Second), SavedRoles: []string{"b"}}))
	require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: "later", UnbanAt: f.now.Add(time.Minute)}))
	f.guild.AddMember(moderation.Member{ID: "present", Roles: []string{"managed", "banned"}})
	f.guild.AddMember(moderation.Member{ID: "later", Roles: []string{"banned"}})

	result := f.reconciler.ScrimCycle(ctx)
	require.Equal(t, CycleResult{Due: 2, Reversed: 1, Skipped: 1}, result)
	require.Equal(t, []string{"b", "managed", "member"}, f.guild.MemberRoles("present"))
	require.Equal(t, []string{"banned"}, f.guild.MemberRoles("later"))

	_, ok, err := f.store.GetScrimBan(ctx, "absent")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestScrimCycleContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: id, UnbanAt: f.now.Add(-time.Second)}))
		f.guild.AddMember(moderation.Member{ID: id, Roles: []string{"banned"}})
	}
	f.guild.FailSetRoles = guildtest.ErrInjected

	result := f.reconciler.ScrimCycle(ctx)
	require.Equal(t, CycleResult{Due: 2, Failed: 2}, result)

	rows, err := f.store.ListScrimBans(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRegisterRunsBothLoopsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: "u1", UnbanAt: f.now.Add(-time.Second)}))
	f.guild.AddMember(moderation.Member{ID: "u1", Roles: []string{"banned"}})

	supervisor := jobs.NewSupervisor(ctx, zap.NewNop())
	require.NoError(t, f.reconciler.Register(supervisor))
	require.ElementsMatch(t, []string{LoopServer, LoopScrim}, supervisor.Running())

	require.Eventually(t, func() bool {
		_, ok, err := f.store.GetScrimBan(context.Background(), "u1")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	supervisor.Wait()
}
