package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queue-warden/internal/metrics"
	"queue-warden/internal/modules/audit"

	"go.uber.org/zap"
)

type Config struct {
	BannedRoleID       string
	FrozenRoleID       string
	MemberRoleID       string
	LogChannelID       string
	ScrimLogChannelID  string
	FrozenChannelID    string
	DefaultScrimBan    time.Duration
	ServerAppeal       string
	ScrimAppeal        string
	FrozenInstructions string
	ActionColor        int
	WarningColor       int
}

// Engine applies and reverses server bans, scrim bans and freezes. Calls on
// the same target are serialized.
type Engine struct {
	cfg     Config
	store   Store
	guild   Guild
	audit   *audit.Logger
	metrics *metrics.Collector
	logger  *zap.Logger
	clock   Clock
	locks   *keyLocks
}

func New(cfg Config, store Store, guild Guild, auditLogger *audit.Logger, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if cfg.DefaultScrimBan <= 0 {
		cfg.DefaultScrimBan = 30 * 24 * time.Hour
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		guild:   guild,
		audit:   auditLogger,
		metrics: collector,
		logger:  logger,
		clock:   realClock{},
		locks:   newKeyLocks(),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Engine) lock(ctx context.Context, userID string) (func(), error) {
	return e.locks.Lock(ctx, userID)
}

// finish records the outcome of an operation. Unexpected errors are logged
// with the target and operation.
func (e *Engine) finish(ctx context.Context, op, kind, targetID string, err error) {
	switch {
	case err == nil:
		e.metrics.Action(op, kind, metrics.ResultOK)
	case UserFacing(err):
		e.metrics.Action(op, kind, metrics.ResultRejected)
	default:
		e.metrics.Action(op, kind, metrics.ResultError)
		if errors.Is(err, context.Canceled) {
			return
		}
		e.logger.Error("moderation action failed",
			zap.String("op", op),
			zap.String("kind", kind),
			zap.String("user_id", targetID),
			zap.Error(err),
		)
		e.audit.Log(context.WithoutCancel(ctx), audit.LevelCrit, targetID, audit.EventFailure, fmt.Sprintf("op=%s kind=%s error=%v", op, kind, err))
	}
}

func platformErr(action, userID string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrPlatform, action, userID, err)
}

func persistenceErr(action, userID string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrPersistence, action, userID, err)
}

// member loads a member together with an index of the guild's roles.
func (e *Engine) member(ctx context.Context, userID string) (Member, bool, roleIndex, error) {
	member, ok, err := e.guild.Member(ctx, userID)
	if err != nil {
		return Member{}, false, nil, platformErr("fetch member", userID, err)
	}
	roles, err := e.guild.Roles(ctx)
	if err != nil {
		return Member{}, false, nil, platformErr("fetch roles", userID, err)
	}
	return member, ok, indexRoles(roles), nil
}

// outranks checks that the executor's highest role sits above the target's.
func (e *Engine) outranks(ctx context.Context, executorID string, target Member, roles roleIndex) error {
	if executorID == "" {
		return nil
	}
	executor, ok, err := e.guild.Member(ctx, executorID)
	if err != nil {
		return platformErr("fetch member", executorID, err)
	}
	if !ok || roles.highest(executor.Roles) <= roles.highest(target.Roles) {
		return ErrInsufficientPermissions
	}
	return nil
}
