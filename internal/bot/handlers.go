package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"queue-warden/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const leaderboardSize = 10

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID != b.cfg.GuildID || interaction.Member == nil || interaction.Member.User == nil {
		b.respondEmbed(session, interaction, b.commandEmbed("Moderation", "Commands only work inside the server.", b.cfg.EmbedColors.Error, nil), true)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	data := interaction.ApplicationCommandData()
	switch data.Name {
	case "ban", "scrimban":
		if !b.authorize(session, interaction, b.isStaff) {
			return
		}
		b.handleBan(ctx, session, interaction, data.Name, data.Options)
	case "unban", "scrimunban":
		if !b.authorize(session, interaction, b.isStaff) {
			return
		}
		b.handleUnban(ctx, session, interaction, data.Name, data.Options)
	case "freeze", "unfreeze":
		if !b.authorize(session, interaction, b.isScreensharer) {
			return
		}
		b.handleFreeze(ctx, session, interaction, data.Name, data.Options)
	case "screensharers":
		b.handleLeaderboard(ctx, session, interaction)
	case "modreport":
		if !b.authorize(session, interaction, b.isStaff) {
			return
		}
		b.handleReport(ctx, session, interaction, data.Options)
	}
}

func (b *Bot) authorize(session *discordgo.Session, interaction *discordgo.InteractionCreate, allowed func(*discordgo.Member) bool) bool {
	if allowed(interaction.Member) {
		return true
	}
	b.respondEmbed(session, interaction, b.errorEmbed("Not allowed", moderation.ErrInsufficientPermissions), true)
	return false
}

// isStaff falls back to the administrator permission when no staff roles are
// configured.
func (b *Bot) isStaff(member *discordgo.Member) bool {
	if len(b.cfg.Moderation.StaffRoleIDs) == 0 {
		return member.Permissions&discordgo.PermissionAdministrator != 0
	}
	return hasAnyRole(member, b.cfg.Moderation.StaffRoleIDs)
}

func (b *Bot) isScreensharer(member *discordgo.Member) bool {
	return b.isStaff(member) || hasAnyRole(member, b.cfg.Moderation.ScreensharerRoleIDs)
}

func hasAnyRole(member *discordgo.Member, roleIDs []string) bool {
	for _, held := range member.Roles {
		for _, id := range roleIDs {
			if held == id {
				return true
			}
		}
	}
	return false
}

func (b *Bot) handleBan(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string, options []*discordgo.ApplicationCommandInteractionDataOption) {
	kind := moderation.KindServer
	title := "Server ban"
	if name == "scrimban" {
		kind = moderation.KindScrim
		title = "Scrim ban"
	}

	args, err := parseBanArgs(options)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed(title, capitalize(err.Error())+".", b.cfg.EmbedColors.Warning, nil), true)
		return
	}
	if err := b.deferResponse(session, interaction); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("command", name), zap.Error(err))
		return
	}

	summary, err := b.engine.Ban(ctx, moderation.BanRequest{
		Kind:           kind,
		TargetID:       args.UserID,
		ExecutorID:     interaction.Member.User.ID,
		Duration:       args.Duration,
		DeleteMessages: args.DeleteMessages && kind == moderation.KindServer,
		Reason:         args.Reason,
	})
	if err != nil {
		b.finishDeferred(session, interaction, b.errorEmbed(title, err), true)
		return
	}

	verb := "banned"
	if summary.Rebanned {
		verb = "re-banned"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: mention(summary.TargetID), Inline: true},
		{Name: "Expires", Value: expiryText(summary.Expiry), Inline: true},
	}
	if summary.UnfrozeFirst {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Note", Value: "The user was unfrozen before the ban."})
	}
	b.finishDeferred(session, interaction, b.commandEmbed(title, fmt.Sprintf("%s was %s.", mention(summary.TargetID), verb), b.cfg.EmbedColors.Action, fields), false)
}

func (b *Bot) handleUnban(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string, options []*discordgo.ApplicationCommandInteractionDataOption) {
	kind := moderation.KindServer
	title := "Server unban"
	if name == "scrimunban" {
		kind = moderation.KindScrim
		title = "Scrim unban"
	}

	args, err := parseUnbanArgs(options)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed(title, capitalize(err.Error())+".", b.cfg.EmbedColors.Warning, nil), true)
		return
	}
	if err := b.deferResponse(session, interaction); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("command", name), zap.Error(err))
		return
	}

	summary, err := b.engine.Unban(ctx, moderation.UnbanRequest{
		Kind:       kind,
		Target:     args.Target,
		ExecutorID: interaction.Member.User.ID,
		Reason:     args.Reason,
	})
	if err != nil {
		b.finishDeferred(session, interaction, b.errorEmbed(title, err), true)
		return
	}

	var fields []*discordgo.MessageEmbedField
	if kind == moderation.KindScrim {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Restored roles", Value: humanize.Comma(int64(len(summary.RestoredRoles))), Inline: true})
	}
	b.finishDeferred(session, interaction, b.commandEmbed(title, fmt.Sprintf("%s was unbanned.", mention(summary.TargetID)), b.cfg.EmbedColors.Action, fields), false)
}

func (b *Bot) handleFreeze(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, name string, options []*discordgo.ApplicationCommandInteractionDataOption) {
	title := "Freeze"
	if name == "unfreeze" {
		title = "Unfreeze"
	}

	args, err := parseTargetArgs(options)
	if err != nil {
		b.respondEmbed(session, interaction, b.commandEmbed(title, capitalize(err.Error())+".", b.cfg.EmbedColors.Warning, nil), true)
		return
	}
	if err := b.deferResponse(session, interaction); err != nil {
		b.logger.Warn("interaction defer failed", zap.String("command", name), zap.Error(err))
		return
	}

	executorID := interaction.Member.User.ID
	if name == "freeze" {
		summary, err := b.engine.Freeze(ctx, moderation.FreezeRequest{TargetID: args.UserID, ExecutorID: executorID})
		if err != nil {
			b.finishDeferred(session, interaction, b.errorEmbed(title, err), true)
			return
		}
		b.finishDeferred(session, interaction, b.commandEmbed(title, fmt.Sprintf("%s is frozen.", mention(summary.TargetID)), b.cfg.EmbedColors.Action, nil), false)
		return
	}

	summary, err := b.engine.Unfreeze(ctx, moderation.UnfreezeRequest{TargetID: args.UserID, ExecutorID: executorID})
	if err != nil {
		b.finishDeferred(session, interaction, b.errorEmbed(title, err), true)
		return
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Screenshares by you", Value: humanize.Comma(int64(summary.ScreensharerCount)), Inline: true},
	}
	b.finishDeferred(session, interaction, b.commandEmbed(title, fmt.Sprintf("%s was unfrozen.", mention(summary.TargetID)), b.cfg.EmbedColors.Action, fields), false)
}

func (b *Bot) handleLeaderboard(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	leaders, err := b.analytics.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		b.logger.Error("leaderboard failed", zap.Error(err))
		b.respondEmbed(session, interaction, b.errorEmbed("Screensharers", err), true)
		return
	}
	if len(leaders) == 0 {
		b.respondEmbed(session, interaction, b.commandEmbed("Screensharers", "No screenshares recorded yet.", b.cfg.EmbedColors.Action, nil), false)
		return
	}

	lines := make([]string, 0, len(leaders))
	for i, entry := range leaders {
		lines = append(lines, fmt.Sprintf("%s %s: %s", humanize.Ordinal(i+1), mention(entry.UserID), humanize.Comma(int64(entry.FreezeCount))))
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Screensharers", strings.Join(lines, "\n"), b.cfg.EmbedColors.Action, nil), false)
}

func (b *Bot) handleReport(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	args := parseReportArgs(options)
	report, err := b.analytics.Report(ctx, b.cfg.GuildID, time.Now().Add(-args.Period))
	if err != nil {
		b.logger.Error("moderation report failed", zap.Error(err))
		b.respondEmbed(session, interaction, b.errorEmbed("Moderation report", err), true)
		return
	}
	b.respondEmbed(session, interaction, b.reportEmbed(report, args.Label), true)
}

func expiryText(expiry moderation.Expiry) string {
	at, timed := expiry.Time()
	if !timed {
		return "Never"
	}
	return fmt.Sprintf("<t:%d:f> (%s)", at.Unix(), humanize.Time(at))
}
