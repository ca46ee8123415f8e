// Package expiry lifts server and scrim bans whose time has run out.
package expiry

import (
	"context"
	"time"

	"queue-warden/internal/jobs"
	"queue-warden/internal/metrics"
	"queue-warden/internal/moderation"
	"queue-warden/internal/storage"

	"go.uber.org/zap"
)

const (
	LoopServer = "server-unbans"
	LoopScrim  = "scrim-unbans"

	expiredReason = "Ban Expired"
)

type Config struct {
	ServerInterval time.Duration
	ScrimInterval  time.Duration
}

type Store interface {
	ListScheduledUnbans(ctx context.Context) ([]storage.ScheduledUnban, error)
	ListScrimBans(ctx context.Context) ([]storage.ScrimBan, error)
}

type Guild interface {
	Member(ctx context.Context, userID string) (moderation.Member, bool, error)
	Bans(ctx context.Context) ([]moderation.BanEntry, error)
}

type Unbanner interface {
	Unban(ctx context.Context, req moderation.UnbanRequest) (moderation.UnbanSummary, error)
}

// CycleResult counts what a single pass over the table did.
type CycleResult struct {
	Due      int
	Reversed int
	Skipped  int
	Failed   int
}

type Reconciler struct {
	cfg     Config
	store   Store
	guild   Guild
	engine  Unbanner
	metrics *metrics.Collector
	logger  *zap.Logger
	clock   moderation.Clock
}

func New(cfg Config, store Store, guild Guild, engine Unbanner, collector *metrics.Collector, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		store:   store,
		guild:   guild,
		engine:  engine,
		metrics: collector,
		logger:  logger,
		clock:   systemClock{},
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (r *Reconciler) WithClock(clock moderation.Clock) {
	r.clock = clock
}

// Register starts both loops under the supervisor. Each runs a cycle right
// away and then once per interval.
func (r *Reconciler) Register(supervisor *jobs.Supervisor) error {
	if err := supervisor.Go(LoopServer, jobs.Every(r.cfg.ServerInterval, func(ctx context.Context) {
		r.ServerCycle(ctx)
	})); err != nil {
		return err
	}
	return supervisor.Go(LoopScrim, jobs.Every(r.cfg.ScrimInterval, func(ctx context.Context) {
		r.ScrimCycle(ctx)
	}))
}

// ServerCycle reverses due server bans that still exist on Discord. Rows
// without a matching platform ban are left for a later cycle.
func (r *Reconciler) ServerCycle(ctx context.Context) CycleResult {
	var result CycleResult
	defer func() { r.record(LoopServer, result) }()

	records, err := r.store.ListScheduledUnbans(ctx)
	if err != nil {
		r.logger.Error("list scheduled unbans failed", zap.Error(err))
		return result
	}

	now := r.clock.Now()
	var due []storage.ScheduledUnban
	for _, record := range records {
		if !record.UnbanAt.After(now) {
			due = append(due, record)
		}
	}
	result.Due = len(due)
	if len(due) == 0 {
		return result
	}

	bans, err := r.guild.Bans(ctx)
	if err != nil {
		r.logger.Error("list platform bans failed", zap.Error(err))
		result.Failed = len(due)
		return result
	}
	banned := make(map[string]struct{}, len(bans))
	for _, entry := range bans {
		banned[entry.UserID] = struct{}{}
	}

	for _, record := range due {
		if ctx.Err() != nil {
			return result
		}
		if _, ok := banned[record.UserID]; !ok {
			result.Skipped++
			continue
		}
		_, err := r.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindServer, Target: record.UserID, Reason: expiredReason})
		if err != nil {
			result.Failed++
			r.logger.Warn("expired server ban not lifted", zap.String("user_id", record.UserID), zap.Error(err))
			continue
		}
		result.Reversed++
	}
	return result
}

// ScrimCycle reverses due scrim bans for members still in the guild. Absent
// members keep their record so a rejoin can restore them.
func (r *Reconciler) ScrimCycle(ctx context.Context) CycleResult {
	var result CycleResult
	defer func() { r.record(LoopScrim, result) }()

	records, err := r.store.ListScrimBans(ctx)
	if err != nil {
		r.logger.Error("list scrim bans failed", zap.Error(err))
		return result
	}

	now := r.clock.Now()
	for _, record := range records {
		if record.UnbanAt.After(now) {
			continue
		}
		if ctx.Err() != nil {
			return result
		}
		result.Due++

		_, present, err := r.guild.Member(ctx, record.UserID)
		if err != nil {
			result.Failed++
			r.logger.Warn("member lookup failed", zap.String("user_id", record.UserID), zap.Error(err))
			continue
		}
		if !present {
			result.Skipped++
			continue
		}
		if _, err := r.engine.Unban(ctx, moderation.UnbanRequest{Kind: moderation.KindScrim, Target: record.UserID, Reason: expiredReason}); err != nil {
			result.Failed++
			r.logger.Warn("expired scrim ban not lifted", zap.String("user_id", record.UserID), zap.Error(err))
			continue
		}
		result.Reversed++
	}
	return result
}

func (r *Reconciler) record(loop string, result CycleResult) {
	r.metrics.Cycle(loop, result.Reversed, result.Failed)
	if result.Due == 0 {
		return
	}
	r.logger.Info("expiry cycle",
		zap.String("loop", loop),
		zap.Int("due", result.Due),
		zap.Int("reversed", result.Reversed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
}
