package moderation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"queue-warden/internal/metrics"
	"queue-warden/internal/moderation"
	"queue-warden/internal/moderation/guildtest"
	"queue-warden/internal/modules/audit"
	"queue-warden/internal/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	targetID = "100000000000000001"
	staffID  = "100000000000000002"
	adminID  = "100000000000000003"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct {
	*storage.Store
	createFreezeErr   error
	upsertScrimBanErr error
}

func (s *failingStore) CreateFreeze(ctx context.Context, record storage.Freeze) error {
	if s.createFreezeErr != nil {
		return s.createFreezeErr
	}
	return s.Store.CreateFreeze(ctx, record)
}

func (s *failingStore) UpsertScrimBan(ctx context.Context, record storage.ScrimBan) error {
	if s.upsertScrimBanErr != nil {
		return s.upsertScrimBanErr
	}
	return s.Store.UpsertScrimBan(ctx, record)
}

type fixture struct {
	engine *moderation.Engine
	store  *failingStore
	guild  *guildtest.Guild
	clock  *fakeClock
}

func testConfig() moderation.Config {
	return moderation.Config{
		BannedRoleID:       "banned",
		FrozenRoleID:       "frozen",
		MemberRoleID:       "member",
		LogChannelID:       "log",
		ScrimLogChannelID:  "scrim-log",
		FrozenChannelID:    "frozen-channel",
		DefaultScrimBan:    30 * 24 * time.Hour,
		ServerAppeal:       "appeal server",
		ScrimAppeal:        "appeal scrim",
		FrozenInstructions: "join the screenshare channel",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()

	base, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(base.Close)
	require.NoError(t, base.Migrate())

	guild := guildtest.New(
		moderation.Role{ID: "a-managed", Position: 1, Managed: true},
		moderation.Role{ID: "b", Position: 2},
		moderation.Role{ID: "c", Position: 2},
		moderation.Role{ID: "banned", Position: 3},
		moderation.Role{ID: "frozen", Position: 3},
		moderation.Role{ID: "member", Position: 1},
		moderation.Role{ID: "staff", Position: 10},
		moderation.Role{ID: "admin", Position: 20},
	)
	guild.AddMember(moderation.Member{ID: targetID, Tag: "Cheater#0001", Roles: []string{"a-managed", "b"}})
	guild.AddMember(moderation.Member{ID: staffID, Tag: "Staff#0001", Roles: []string{"staff"}})
	guild.AddMember(moderation.Member{ID: adminID, Tag: "Admin#0001", Roles: []string{"admin"}})

	store := &failingStore{Store: base}
	engine := moderation.New(testConfig(), store, guild, audit.NewLogger(base, logger, "g1"), metrics.New(), logger)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine.WithClock(clock)

	return &fixture{engine: engine, store: store, guild: guild, clock: clock}
}

func TestScrimBanAndUnbanRestoresRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID, Duration: 30 * 24 * time.Hour, Reason: "griefing"})
	require.NoError(t, err)
	require.False(t, summary.Rebanned)
	require.Equal(t, []string{"b"}, summary.SavedRoles)
	require.Equal(t, []string{"a-managed", "banned"}, f.guild.MemberRoles(targetID))

	record, ok, err := f.store.GetScrimBan(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"b"}, record.SavedRoles)

	unban, err := f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.False(t, unban.Automatic)
	require.Equal(t, []string{"a-managed", "b", "member"}, f.guild.MemberRoles(targetID))

	_, ok, err = f.store.GetScrimBan(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScrimBanDefaultsDuration(t *testing.T) {
	f := newFixture(t)

	summary, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	at, timed := summary.Expiry.Time()
	require.True(t, timed)
	require.Equal(t, f.clock.Now().Add(30*24*time.Hour), at)
}

func TestScrimRebanMergesSavedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID, Duration: time.Hour})
	require.NoError(t, err)

	// The member picks up another role while banned.
	f.guild.AddMember(moderation.Member{ID: targetID, Tag: "Cheater#0001", Roles: []string{"a-managed", "banned", "c"}})
	f.clock.Advance(10 * time.Minute)

	summary, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID, Duration: 2 * time.Hour})
	require.NoError(t, err)
	require.True(t, summary.Rebanned)
	require.Equal(t, []string{"b", "c"}, summary.SavedRoles)

	record, ok, err := f.store.GetScrimBan(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"b", "c"}, record.SavedRoles)
	require.Equal(t, f.clock.Now().Add(2*time.Hour).Unix(), record.UnbanAt.Unix())
}

func TestScrimBanPersistenceFailureKeepsRoles(t *testing.T) {
	f := newFixture(t)
	f.store.upsertScrimBanErr = guildtest.ErrInjected

	_, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrPersistence)
	require.False(t, moderation.UserFacing(err))
	require.Equal(t, []string{"a-managed", "banned"}, f.guild.MemberRoles(targetID))
}

func TestScrimBanRequiresMember(t *testing.T) {
	f := newFixture(t)
	f.guild.RemoveMember(targetID)

	_, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotMember)
}

func TestScrimUnbanWithoutMemberKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	f.guild.RemoveMember(targetID)

	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNoMemberNoRestore)

	_, ok, err := f.store.GetScrimBan(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestScrimUnbanDropsDeletedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScrimBan(ctx, storage.ScrimBan{
		UserID:     targetID,
		UnbanAt:    f.clock.Now(),
		SavedRoles: []string{"b", "gone"},
	}))
	f.guild.AddMember(moderation.Member{ID: targetID, Roles: []string{"a-managed", "banned"}})

	summary, err := f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID})
	require.NoError(t, err)
	require.True(t, summary.Automatic)
	require.Equal(t, []string{"a-managed", "b", "member"}, f.guild.MemberRoles(targetID))
}

func TestUnbanTwiceReportsNotBanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	calls := f.guild.SetRolesCalls
	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotBanned)
	require.Equal(t, calls, f.guild.SetRolesCalls)

	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindServer, Target: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotBanned)
	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindServer, Target: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotBanned)
	require.Zero(t, f.guild.UnbanCalls)
}

func TestServerPermanentBanHasNoRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID, DeleteMessages: true})
	require.NoError(t, err)
	require.True(t, summary.Expiry.IsPermanent())
	require.True(t, f.guild.IsBanned(targetID))
	require.Equal(t, 7, f.guild.LastDeleteDays)
	require.NotEmpty(t, f.guild.Directs)

	_, ok, err := f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindServer, Target: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.False(t, f.guild.IsBanned(targetID))
}

func TestServerTimedBanStoresExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID, Duration: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.Zero(t, f.guild.LastDeleteDays)

	record, ok, err := f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.clock.Now().Add(7*24*time.Hour).Unix(), record.UnbanAt.Unix())

	// Re-ban as permanent removes the schedule.
	summary, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.True(t, summary.Rebanned)
	_, ok, err = f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, f.guild.BanCalls)
}

func TestServerBanRollsBackOnPlatformFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guild.FailBan = guildtest.ErrInjected

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID, Duration: time.Hour})
	require.ErrorIs(t, err, moderation.ErrPlatform)
	require.ErrorIs(t, err, guildtest.ErrInjected)

	_, ok, err := f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestServerRebanRollbackRestoresPreviousExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	previous := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: targetID, UnbanAt: previous}))
	f.guild.FailBan = guildtest.ErrInjected

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrPlatform)

	record, ok, err := f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, previous.Unix(), record.UnbanAt.Unix())
}

func TestServerBanRequiresHigherRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindServer, TargetID: adminID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrInsufficientPermissions)
	require.True(t, moderation.UserFacing(err))
	require.Zero(t, f.guild.BanCalls)
}

func TestServerBanOfNonMember(t *testing.T) {
	f := newFixture(t)
	f.guild.RemoveMember(targetID)

	_, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.True(t, f.guild.IsBanned(targetID))
	require.Empty(t, f.guild.Directs)
}

func TestBanRejectsBots(t *testing.T) {
	f := newFixture(t)
	f.guild.AddMember(moderation.Member{ID: targetID, Bot: true})

	_, err := f.engine.Ban(context.Background(), moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrTargetIsBot)
}

func TestServerUnbanByTag(t *testing.T) {
	f := newFixture(t)
	f.guild.AddBan(moderation.BanEntry{UserID: targetID, Tag: "Cheater#0001"})

	summary, err := f.engine.Unban(context.Background(), moderation.UnbanRequest{Kind: moderation.KindServer, Target: "cheater#0001", ExecutorID: staffID})
	require.NoError(t, err)
	require.Equal(t, targetID, summary.TargetID)
	require.False(t, f.guild.IsBanned(targetID))
}

func TestServerUnbanIgnoresStaleRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: targetID, UnbanAt: f.clock.Now()}))

	_, err := f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindServer, Target: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotBanned)
}

func TestFreezeThenUnfreezeRestoresRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	freeze, err := f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, freeze.SavedRoles)
	require.Equal(t, []string{"a-managed", "frozen"}, f.guild.MemberRoles(targetID))

	var instructions bool
	for _, post := range f.guild.Posts {
		if post.ChannelID == "frozen-channel" && post.Content != "" {
			instructions = true
		}
	}
	require.True(t, instructions)

	unfreeze, err := f.engine.Unfreeze(ctx, moderation.UnfreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.Equal(t, 1, unfreeze.ScreensharerCount)
	require.Equal(t, []string{"a-managed", "b", "member"}, f.guild.MemberRoles(targetID))

	_, ok, err := f.store.GetFreeze(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)

	top, err := f.store.TopScreensharers(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []storage.Screensharer{{UserID: staffID, FreezeCount: 1}}, top)
}

func TestFreezeTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	_, err = f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrAlreadyFrozen)

	record, ok, err := f.store.GetFreeze(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"b"}, record.SavedRoles)
}

func TestFreezeOfScrimBannedMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	_, err = f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrAlreadyBanned)
}

func TestFreezeChecksHierarchyFirst(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Freeze(context.Background(), moderation.FreezeRequest{TargetID: adminID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrInsufficientPermissions)
	require.Equal(t, []string{"admin"}, f.guild.MemberRoles(adminID))
}

func TestFreezeRevertsRolesWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	f.store.createFreezeErr = guildtest.ErrInjected

	_, err := f.engine.Freeze(context.Background(), moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrPersistence)
	require.Equal(t, []string{"a-managed", "b"}, f.guild.MemberRoles(targetID))
}

func TestUnfreezeWithoutRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Unfreeze(context.Background(), moderation.UnfreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrNotFrozen)
}

func TestBanUnfreezesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	summary, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	require.True(t, summary.UnfrozeFirst)
	require.Equal(t, []string{"b", "member"}, summary.SavedRoles)
	require.Equal(t, []string{"a-managed", "banned"}, f.guild.MemberRoles(targetID))

	_, ok, err := f.store.GetFreeze(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)

	// Lifting the freeze for a ban is not a screenshare.
	top, err := f.store.TopScreensharers(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, top)
}

func TestBanAbortsWhenUnfreezeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)
	f.guild.FailSetRolesAfter = f.guild.SetRolesCalls
	f.guild.FailSetRoles = guildtest.ErrInjected

	_, err = f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrFrozenUnfreezeFailed)
	require.Zero(t, f.guild.BanCalls)

	_, ok, err := f.store.GetFreeze(ctx, targetID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConcurrentUnbansReverseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: targetID})
		}(i)
	}
	wg.Wait()

	var ok, notBanned int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case moderation.UserFacing(err):
			require.ErrorIs(t, err, moderation.ErrNotBanned)
			notBanned++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, notBanned)
}

func TestReapplyOnRejoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindScrim, TargetID: targetID, ExecutorID: staffID})
	require.NoError(t, err)

	f.guild.AddMember(moderation.Member{ID: targetID, Roles: []string{"a-managed"}})
	changed, err := f.engine.Reapply(ctx, targetID)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []string{"a-managed", "banned"}, f.guild.MemberRoles(targetID))

	changed, err = f.engine.Reapply(ctx, staffID)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestBanRejectsNegativeDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kind := range []moderation.Kind{moderation.KindServer, moderation.KindScrim} {
		_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: kind, TargetID: targetID, ExecutorID: staffID, Duration: -time.Hour})
		require.ErrorIs(t, err, moderation.ErrInvalidDuration)
		require.True(t, moderation.UserFacing(err))
	}
	require.Zero(t, f.guild.BanCalls)
	require.Zero(t, f.guild.SetRolesCalls)
	require.Equal(t, []string{"a-managed", "b"}, f.guild.MemberRoles(targetID))

	_, ok, err := f.store.GetScheduledUnban(ctx, targetID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestServerBanFailureAfterNoticeIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	ctx := context.Background()
	f.guild.FailBan = guildtest.ErrInjected

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID, Duration: time.Hour})
	require.ErrorIs(t, err, moderation.ErrPlatform)
	require.Len(t, f.guild.Directs, 1)

	entries := logs.FilterMessage("ban notice sent but platform ban failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, targetID, entries[0].ContextMap()["user_id"])
}

func TestServerBanFailureOfNonMemberSendsNoNotice(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	ctx := context.Background()
	f.guild.RemoveMember(targetID)
	f.guild.FailBan = guildtest.ErrInjected

	_, err := f.engine.Ban(ctx, moderation.BanRequest{Kind: moderation.KindServer, TargetID: targetID, ExecutorID: staffID})
	require.ErrorIs(t, err, moderation.ErrPlatform)
	require.Empty(t, f.guild.Directs)
	require.Zero(t, logs.FilterMessage("ban notice sent but platform ban failed").Len())
}
