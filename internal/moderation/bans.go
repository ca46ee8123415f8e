package moderation

import (
	"context"
	"fmt"
	"strings"

	"queue-warden/internal/storage"

	"go.uber.org/zap"
)

const deleteMessageDays = 7

// Ban applies a server or scrim ban. A frozen target is unfrozen first so
// their saved roles are not lost.
func (e *Engine) Ban(ctx context.Context, req BanRequest) (summary BanSummary, err error) {
	defer func() { e.finish(ctx, "ban", req.Kind.String(), req.TargetID, err) }()

	// Zero means permanent (server) or the default length (scrim); a negative
	// value must never be read as either.
	if req.Duration < 0 {
		return BanSummary{}, ErrInvalidDuration
	}

	unlock, err := e.lock(ctx, req.TargetID)
	if err != nil {
		return BanSummary{}, err
	}
	defer unlock()

	member, isMember, roles, err := e.member(ctx, req.TargetID)
	if err != nil {
		return BanSummary{}, err
	}
	if isMember && member.Bot {
		return BanSummary{}, ErrTargetIsBot
	}

	summary = BanSummary{Kind: req.Kind, TargetID: req.TargetID, TargetTag: member.Tag}

	switch req.Kind {
	case KindScrim:
		if !isMember {
			return BanSummary{}, ErrNotMember
		}
	default:
		if isMember {
			if err := e.outranks(ctx, req.ExecutorID, member, roles); err != nil {
				return BanSummary{}, err
			}
		}
	}

	frozen, isFrozen, err := e.store.GetFreeze(ctx, req.TargetID)
	if err != nil {
		return BanSummary{}, persistenceErr("load freeze", req.TargetID, err)
	}
	if isFrozen {
		if _, err := e.unfreezeLocked(ctx, UnfreezeRequest{TargetID: frozen.UserID, ExecutorID: req.ExecutorID}, false); err != nil {
			return BanSummary{}, fmt.Errorf("%w: %w", ErrFrozenUnfreezeFailed, err)
		}
		summary.UnfrozeFirst = true
		if member, isMember, roles, err = e.member(ctx, req.TargetID); err != nil {
			return BanSummary{}, err
		}
	}

	if req.Kind == KindScrim {
		if !isMember {
			return BanSummary{}, ErrNotMember
		}
		return e.scrimBan(ctx, req, member, roles, summary)
	}
	return e.serverBan(ctx, req, isMember, summary)
}

func (e *Engine) serverBan(ctx context.Context, req BanRequest, isMember bool, summary BanSummary) (BanSummary, error) {
	existing, rebanned, err := e.store.GetScheduledUnban(ctx, req.TargetID)
	if err != nil {
		return BanSummary{}, persistenceErr("load scheduled unban", req.TargetID, err)
	}
	summary.Rebanned = rebanned
	summary.Expiry = Permanent()
	if req.Duration > 0 {
		summary.Expiry = At(e.clock.Now().Add(req.Duration))
	}

	wrote := false
	if at, timed := summary.Expiry.Time(); timed {
		if err := e.store.UpsertScheduledUnban(ctx, storage.ScheduledUnban{UserID: req.TargetID, UnbanAt: at}); err != nil {
			return BanSummary{}, persistenceErr("save scheduled unban", req.TargetID, err)
		}
		wrote = true
	} else if rebanned {
		if err := e.store.DeleteScheduledUnban(ctx, req.TargetID); err != nil {
			return BanSummary{}, persistenceErr("clear scheduled unban", req.TargetID, err)
		}
	}

	// Discord drops the DM channel once the ban lands.
	if isMember {
		e.sendDirect(ctx, req.TargetID, e.banDirect(req, summary.Expiry))
	}

	days := 0
	if req.DeleteMessages {
		days = deleteMessageDays
	}
	if err := e.guild.Ban(ctx, req.TargetID, days, orDefault(req.Reason, "No reason provided")); err != nil {
		e.rollbackScheduledUnban(ctx, req.TargetID, existing, rebanned, wrote)
		if isMember {
			e.logger.Warn("ban notice sent but platform ban failed",
				zap.String("user_id", req.TargetID),
				zap.Error(err),
			)
		}
		return BanSummary{}, platformErr("ban", req.TargetID, err)
	}

	e.notifyBan(ctx, req, summary)
	return summary, nil
}

// rollbackScheduledUnban puts the scheduled unban table back the way it was
// before a failed platform ban.
func (e *Engine) rollbackScheduledUnban(ctx context.Context, userID string, previous storage.ScheduledUnban, hadPrevious, wrote bool) {
	var err error
	switch {
	case hadPrevious:
		err = e.store.UpsertScheduledUnban(ctx, previous)
	case wrote:
		err = e.store.DeleteScheduledUnban(ctx, userID)
	default:
		return
	}
	if err != nil {
		e.logger.Error("scheduled unban rollback failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) scrimBan(ctx context.Context, req BanRequest, member Member, roles roleIndex, summary BanSummary) (BanSummary, error) {
	duration := req.Duration
	if duration <= 0 {
		duration = e.cfg.DefaultScrimBan
	}

	existing, rebanned, err := e.store.GetScrimBan(ctx, req.TargetID)
	if err != nil {
		return BanSummary{}, persistenceErr("load scrim ban", req.TargetID, err)
	}

	kept, removed := roles.split(member.Roles, e.cfg.BannedRoleID)
	next := union(kept, []string{e.cfg.BannedRoleID})
	if err := e.guild.SetMemberRoles(ctx, req.TargetID, next); err != nil {
		return BanSummary{}, platformErr("replace roles", req.TargetID, err)
	}

	saved := removed
	if rebanned {
		saved = union(existing.SavedRoles, removed)
	}
	at := e.clock.Now().Add(duration)
	summary.Rebanned = rebanned
	summary.Expiry = At(at)
	summary.SavedRoles = saved

	// The role swap has already happened; a failed write leaves the member
	// banned without a record and is reported rather than reverted.
	if err := e.store.UpsertScrimBan(ctx, storage.ScrimBan{UserID: req.TargetID, UnbanAt: at, SavedRoles: saved}); err != nil {
		e.logger.Error("scrim ban applied without a record",
			zap.String("user_id", req.TargetID),
			zap.Strings("saved_roles", saved),
			zap.Error(err),
		)
		return BanSummary{}, persistenceErr("save scrim ban", req.TargetID, err)
	}

	e.sendDirect(ctx, req.TargetID, e.banDirect(req, summary.Expiry))
	e.notifyBan(ctx, req, summary)
	return summary, nil
}

// Unban reverses a ban. For server bans the platform ban list decides whether
// the user is banned, not the scheduled unban table.
func (e *Engine) Unban(ctx context.Context, req UnbanRequest) (summary UnbanSummary, err error) {
	targetID := req.Target
	defer func() { e.finish(ctx, "unban", req.Kind.String(), targetID, err) }()

	if req.Kind == KindScrim {
		return e.scrimUnban(ctx, req)
	}

	entry, found, err := e.resolveBan(ctx, req.Target)
	if err != nil {
		return UnbanSummary{}, err
	}
	if !found {
		return UnbanSummary{}, ErrNotBanned
	}
	targetID = entry.UserID

	unlock, err := e.lock(ctx, entry.UserID)
	if err != nil {
		return UnbanSummary{}, err
	}
	defer unlock()

	// Another caller may have lifted the ban while we waited on the lock.
	entry, found, err = e.resolveBan(ctx, entry.UserID)
	if err != nil {
		return UnbanSummary{}, err
	}
	if !found {
		return UnbanSummary{}, ErrNotBanned
	}

	if err := e.guild.Unban(ctx, entry.UserID); err != nil {
		return UnbanSummary{}, platformErr("unban", entry.UserID, err)
	}
	if err := e.store.DeleteScheduledUnban(ctx, entry.UserID); err != nil {
		e.logger.Warn("scheduled unban cleanup failed", zap.String("user_id", entry.UserID), zap.Error(err))
	}

	summary = UnbanSummary{Kind: KindServer, TargetID: entry.UserID, TargetTag: entry.Tag, Automatic: req.ExecutorID == ""}
	e.notifyUnban(ctx, req, summary)
	return summary, nil
}

// resolveBan finds a platform ban by user id, falling back to a
// case-insensitive tag match over the full ban list.
func (e *Engine) resolveBan(ctx context.Context, target string) (BanEntry, bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return BanEntry{}, false, nil
	}
	if isSnowflake(target) {
		entry, ok, err := e.guild.LookupBan(ctx, target)
		if err != nil {
			return BanEntry{}, false, platformErr("fetch ban", target, err)
		}
		if ok {
			return entry, true, nil
		}
	}

	bans, err := e.guild.Bans(ctx)
	if err != nil {
		return BanEntry{}, false, platformErr("list bans", target, err)
	}
	for _, entry := range bans {
		if entry.UserID == target || strings.EqualFold(entry.Tag, target) {
			return entry, true, nil
		}
	}
	return BanEntry{}, false, nil
}

func (e *Engine) scrimUnban(ctx context.Context, req UnbanRequest) (UnbanSummary, error) {
	unlock, err := e.lock(ctx, req.Target)
	if err != nil {
		return UnbanSummary{}, err
	}
	defer unlock()

	record, ok, err := e.store.GetScrimBan(ctx, req.Target)
	if err != nil {
		return UnbanSummary{}, persistenceErr("load scrim ban", req.Target, err)
	}
	if !ok {
		return UnbanSummary{}, ErrNotBanned
	}

	member, isMember, roles, err := e.member(ctx, req.Target)
	if err != nil {
		return UnbanSummary{}, err
	}
	if !isMember {
		return UnbanSummary{}, ErrNoMemberNoRestore
	}

	restored := roles.restore(record.SavedRoles, member.Roles, e.cfg.MemberRoleID)
	if err := e.guild.SetMemberRoles(ctx, req.Target, restored); err != nil {
		return UnbanSummary{}, platformErr("restore roles", req.Target, err)
	}
	if err := e.store.DeleteScrimBan(ctx, req.Target); err != nil {
		e.logger.Warn("scrim ban cleanup failed", zap.String("user_id", req.Target), zap.Error(err))
	}

	summary := UnbanSummary{
		Kind:          KindScrim,
		TargetID:      req.Target,
		TargetTag:     member.Tag,
		Automatic:     req.ExecutorID == "",
		RestoredRoles: restored,
	}
	e.notifyUnban(ctx, req, summary)
	return summary, nil
}

func isSnowflake(value string) bool {
	if len(value) < 15 || len(value) > 21 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
