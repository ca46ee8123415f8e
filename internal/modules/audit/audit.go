package audit

import (
	"context"
	"time"

	"queue-warden/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	EventBan        = "server_ban"
	EventUnban      = "server_unban"
	EventScrimBan   = "scrim_ban"
	EventScrimUnban = "scrim_unban"
	EventFreeze     = "freeze"
	EventUnfreeze   = "unfreeze"
	EventFailure    = "action_failed"
)

type Store interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

type Logger struct {
	store   Store
	logger  *zap.Logger
	guildID string
	notify  func(context.Context, storage.AuditLog)
	now     func() time.Time
}

func NewLogger(store Store, logger *zap.Logger, guildID string) *Logger {
	return &Logger{store: store, logger: logger, guildID: guildID, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

// Log records a moderation event. Storage failures are logged and swallowed.
func (l *Logger) Log(ctx context.Context, level, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   l.guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit log persist failed", zap.String("event", event), zap.String("user_id", userID), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", l.guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}
