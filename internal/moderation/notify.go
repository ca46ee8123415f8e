package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"queue-warden/internal/modules/audit"

	"github.com/dustin/go-humanize"
	embed "github.com/leighmacdonald/discordgo-embed"
	"go.uber.org/zap"
)

const footer = "queue-warden"

func mention(userID string) string {
	if userID == "" {
		return "Automatic"
	}
	return "<@" + userID + ">"
}

func rolesText(ids []string) string {
	if len(ids) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, "<@&"+id+">")
	}
	return strings.Join(parts, " ")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (e *Engine) expiryText(expiry Expiry) string {
	at, ok := expiry.Time()
	if !ok {
		return "Never (permanent)"
	}
	return fmt.Sprintf("<t:%d:F> (%s)", at.Unix(), humanize.RelTime(at, e.clock.Now(), "ago", "from now"))
}

func (e *Engine) newEmbed(title, description string, color int) *embed.Embed {
	msg := embed.NewEmbed().
		SetTitle(title).
		SetDescription(description).
		SetColor(color).
		SetFooter(footer)
	msg.Timestamp = e.clock.Now().UTC().Format(time.RFC3339)
	return msg
}

func (e *Engine) logChannel(kind Kind) string {
	if kind == KindScrim && e.cfg.ScrimLogChannelID != "" {
		return e.cfg.ScrimLogChannelID
	}
	return e.cfg.LogChannelID
}

func (e *Engine) postLog(ctx context.Context, channelID string, msg *embed.Embed) {
	if channelID == "" {
		return
	}
	if err := e.guild.PostEmbed(ctx, channelID, msg.Truncate().MessageEmbed); err != nil {
		e.logger.Warn("log channel post failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (e *Engine) sendDirect(ctx context.Context, userID string, msg *embed.Embed) {
	if err := e.guild.SendDirect(ctx, userID, msg.Truncate().MessageEmbed); err != nil {
		e.logger.Debug("direct message failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) banTitle(kind Kind) string {
	if kind == KindScrim {
		return "Scrim Ban"
	}
	return "Server Ban"
}

func (e *Engine) notifyBan(ctx context.Context, req BanRequest, summary BanSummary) {
	title := e.banTitle(req.Kind)
	if summary.Rebanned {
		title += " Updated"
	}
	reason := orDefault(req.Reason, "No reason provided")

	logMsg := e.newEmbed(title, mention(req.TargetID)+" was banned.", e.cfg.WarningColor)
	logMsg.AddField("User", fmt.Sprintf("%s (%s)", mention(req.TargetID), req.TargetID)).MakeFieldInline()
	logMsg.AddField("Staff", mention(req.ExecutorID)).MakeFieldInline()
	logMsg.AddField("Expires", e.expiryText(summary.Expiry))
	logMsg.AddField("Reason", reason)
	if summary.UnfrozeFirst {
		logMsg.AddField("Note", "User was unfrozen before the ban was applied.")
	}
	if req.Kind == KindScrim {
		logMsg.AddField("Saved Roles", rolesText(summary.SavedRoles))
	}
	e.postLog(ctx, e.logChannel(req.Kind), logMsg)

	details := fmt.Sprintf("executor=%s expiry=%s rebanned=%t reason=%s", req.ExecutorID, e.expiryText(summary.Expiry), summary.Rebanned, reason)
	event := audit.EventBan
	if req.Kind == KindScrim {
		event = audit.EventScrimBan
	}
	e.audit.Log(ctx, audit.LevelWarn, req.TargetID, event, details)
}

func (e *Engine) banDirect(req BanRequest, expiry Expiry) *embed.Embed {
	appeal := e.cfg.ServerAppeal
	description := "You have been banned from the server."
	if req.Kind == KindScrim {
		appeal = e.cfg.ScrimAppeal
		description = "You have been banned from scrims."
	}
	msg := e.newEmbed(e.banTitle(req.Kind), description, e.cfg.WarningColor)
	msg.AddField("Reason", orDefault(req.Reason, "No reason provided"))
	msg.AddField("Expires", e.expiryText(expiry))
	if appeal != "" {
		msg.AddField("Appeal", appeal)
	}
	return msg
}

func (e *Engine) notifyUnban(ctx context.Context, req UnbanRequest, summary UnbanSummary) {
	title := "Server Unban"
	event := audit.EventUnban
	if req.Kind == KindScrim {
		title = "Scrim Unban"
		event = audit.EventScrimUnban
	}
	reason := orDefault(req.Reason, "No reason provided")

	description := mention(summary.TargetID) + " was unbanned."
	if summary.Automatic {
		description = "Ban expired for " + mention(summary.TargetID) + "."
	}
	logMsg := e.newEmbed(title, description, e.cfg.ActionColor)
	logMsg.AddField("User", fmt.Sprintf("%s (%s)", mention(summary.TargetID), summary.TargetID)).MakeFieldInline()
	if !summary.Automatic {
		logMsg.AddField("Staff", mention(req.ExecutorID)).MakeFieldInline()
	}
	logMsg.AddField("Reason", reason)
	e.postLog(ctx, e.logChannel(req.Kind), logMsg)

	dm := e.newEmbed(title, "Your ban has been lifted.", e.cfg.ActionColor)
	if summary.Automatic {
		dm.SetDescription("Your ban has expired.")
	}
	e.sendDirect(ctx, summary.TargetID, dm)

	e.audit.Log(ctx, audit.LevelInfo, summary.TargetID, event, fmt.Sprintf("executor=%s automatic=%t reason=%s", req.ExecutorID, summary.Automatic, reason))
}

func (e *Engine) notifyFreeze(ctx context.Context, req FreezeRequest, summary FreezeSummary) {
	logMsg := e.newEmbed("Freeze", mention(req.TargetID)+" was frozen.", e.cfg.WarningColor)
	logMsg.AddField("User", fmt.Sprintf("%s (%s)", mention(req.TargetID), req.TargetID)).MakeFieldInline()
	logMsg.AddField("Staff", mention(req.ExecutorID)).MakeFieldInline()
	logMsg.AddField("Saved Roles", rolesText(summary.SavedRoles))
	e.postLog(ctx, e.cfg.LogChannelID, logMsg)

	if e.cfg.FrozenChannelID != "" && e.cfg.FrozenInstructions != "" {
		if err := e.guild.PostMessage(ctx, e.cfg.FrozenChannelID, mention(req.TargetID)+" "+e.cfg.FrozenInstructions); err != nil {
			e.logger.Warn("frozen instructions post failed", zap.String("user_id", req.TargetID), zap.Error(err))
		}
	}

	e.audit.Log(ctx, audit.LevelWarn, req.TargetID, audit.EventFreeze, "executor="+req.ExecutorID)
}

func (e *Engine) notifyUnfreeze(ctx context.Context, req UnfreezeRequest, summary UnfreezeSummary) {
	logMsg := e.newEmbed("Unfreeze", mention(summary.TargetID)+" was unfrozen.", e.cfg.ActionColor)
	logMsg.AddField("User", fmt.Sprintf("%s (%s)", mention(summary.TargetID), summary.TargetID)).MakeFieldInline()
	logMsg.AddField("Staff", mention(req.ExecutorID)).MakeFieldInline()
	logMsg.AddField("Restored Roles", rolesText(summary.RestoredRoles))
	e.postLog(ctx, e.cfg.LogChannelID, logMsg)

	e.audit.Log(ctx, audit.LevelInfo, summary.TargetID, audit.EventUnfreeze, "executor="+req.ExecutorID)
}
