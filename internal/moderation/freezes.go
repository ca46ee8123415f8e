package moderation

import (
	"context"
	"errors"

	"queue-warden/internal/storage"

	"go.uber.org/zap"
)

// Freeze strips a member down to their managed roles plus the frozen role
// pending a screenshare.
func (e *Engine) Freeze(ctx context.Context, req FreezeRequest) (summary FreezeSummary, err error) {
	defer func() { e.finish(ctx, "freeze", "none", req.TargetID, err) }()

	unlock, err := e.lock(ctx, req.TargetID)
	if err != nil {
		return FreezeSummary{}, err
	}
	defer unlock()

	member, isMember, roles, err := e.member(ctx, req.TargetID)
	if err != nil {
		return FreezeSummary{}, err
	}
	if !isMember {
		return FreezeSummary{}, ErrNotMember
	}
	if member.Bot {
		return FreezeSummary{}, ErrTargetIsBot
	}
	if err := e.outranks(ctx, req.ExecutorID, member, roles); err != nil {
		return FreezeSummary{}, err
	}

	if _, frozen, err := e.store.GetFreeze(ctx, req.TargetID); err != nil {
		return FreezeSummary{}, persistenceErr("load freeze", req.TargetID, err)
	} else if frozen {
		return FreezeSummary{}, ErrAlreadyFrozen
	}
	if _, banned, err := e.store.GetScrimBan(ctx, req.TargetID); err != nil {
		return FreezeSummary{}, persistenceErr("load scrim ban", req.TargetID, err)
	} else if banned {
		return FreezeSummary{}, ErrAlreadyBanned
	}

	kept, saved := roles.split(member.Roles, e.cfg.FrozenRoleID)
	if err := e.guild.SetMemberRoles(ctx, req.TargetID, union(kept, []string{e.cfg.FrozenRoleID})); err != nil {
		return FreezeSummary{}, platformErr("replace roles", req.TargetID, err)
	}

	record := storage.Freeze{UserID: req.TargetID, SavedRoles: saved, FrozenAt: e.clock.Now()}
	if err := e.store.CreateFreeze(ctx, record); err != nil {
		// A frozen member without a record could never be restored.
		if revertErr := e.guild.SetMemberRoles(ctx, req.TargetID, member.Roles); revertErr != nil {
			e.logger.Error("freeze revert failed",
				zap.String("user_id", req.TargetID),
				zap.Strings("roles", member.Roles),
				zap.Error(revertErr),
			)
		}
		if errors.Is(err, storage.ErrDuplicate) {
			return FreezeSummary{}, ErrAlreadyFrozen
		}
		return FreezeSummary{}, persistenceErr("save freeze", req.TargetID, err)
	}

	summary = FreezeSummary{TargetID: req.TargetID, TargetTag: member.Tag, SavedRoles: saved}
	e.notifyFreeze(ctx, req, summary)
	return summary, nil
}

// Unfreeze restores a frozen member's roles and credits the executor with a
// completed screenshare.
func (e *Engine) Unfreeze(ctx context.Context, req UnfreezeRequest) (summary UnfreezeSummary, err error) {
	defer func() { e.finish(ctx, "unfreeze", "none", req.TargetID, err) }()

	unlock, err := e.lock(ctx, req.TargetID)
	if err != nil {
		return UnfreezeSummary{}, err
	}
	defer unlock()

	return e.unfreezeLocked(ctx, req, true)
}

// unfreezeLocked expects the caller to hold the target's lock. Only a
// completed screenshare credits the executor; tally is false when the freeze
// is lifted as part of another action.
func (e *Engine) unfreezeLocked(ctx context.Context, req UnfreezeRequest, tally bool) (UnfreezeSummary, error) {
	record, ok, err := e.store.GetFreeze(ctx, req.TargetID)
	if err != nil {
		return UnfreezeSummary{}, persistenceErr("load freeze", req.TargetID, err)
	}
	if !ok {
		return UnfreezeSummary{}, ErrNotFrozen
	}

	member, isMember, roles, err := e.member(ctx, req.TargetID)
	if err != nil {
		return UnfreezeSummary{}, err
	}
	if !isMember {
		return UnfreezeSummary{}, ErrNoMemberNoRestore
	}

	restored := roles.restore(record.SavedRoles, member.Roles, e.cfg.MemberRoleID)
	if err := e.guild.SetMemberRoles(ctx, req.TargetID, restored); err != nil {
		return UnfreezeSummary{}, platformErr("restore roles", req.TargetID, err)
	}
	if err := e.store.DeleteFreeze(ctx, req.TargetID); err != nil {
		e.logger.Warn("freeze cleanup failed", zap.String("user_id", req.TargetID), zap.Error(err))
	}

	summary := UnfreezeSummary{TargetID: req.TargetID, TargetTag: member.Tag, RestoredRoles: restored}
	if tally && req.ExecutorID != "" {
		count, err := e.store.IncrementScreensharer(ctx, req.ExecutorID)
		if err != nil {
			e.logger.Warn("screensharer tally failed", zap.String("executor_id", req.ExecutorID), zap.Error(err))
		}
		summary.ScreensharerCount = count
	}

	e.notifyUnfreeze(ctx, req, summary)
	return summary, nil
}

// Reapply puts the scrim-banned or frozen role back on a member who left and
// rejoined while a record was open. It reports whether anything was changed.
func (e *Engine) Reapply(ctx context.Context, userID string) (bool, error) {
	unlock, err := e.lock(ctx, userID)
	if err != nil {
		return false, err
	}
	defer unlock()

	role := ""
	if _, frozen, err := e.store.GetFreeze(ctx, userID); err != nil {
		return false, persistenceErr("load freeze", userID, err)
	} else if frozen {
		role = e.cfg.FrozenRoleID
	}
	if role == "" {
		if _, banned, err := e.store.GetScrimBan(ctx, userID); err != nil {
			return false, persistenceErr("load scrim ban", userID, err)
		} else if banned {
			role = e.cfg.BannedRoleID
		}
	}
	if role == "" {
		return false, nil
	}

	member, isMember, roles, err := e.member(ctx, userID)
	if err != nil || !isMember {
		return false, err
	}
	kept, _ := roles.split(member.Roles, role)
	if err := e.guild.SetMemberRoles(ctx, userID, union(kept, []string{role})); err != nil {
		return false, platformErr("reapply roles", userID, err)
	}
	e.logger.Info("restriction reapplied on rejoin", zap.String("user_id", userID), zap.String("role_id", role))
	return true, nil
}
