package bot

import (
	"fmt"
	"strings"

	"queue-warden/internal/analytics"
	"queue-warden/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	embed "github.com/leighmacdonald/discordgo-embed"
)

var eventLabels = map[string]string{
	audit.EventBan:        "Server bans",
	audit.EventUnban:      "Server unbans",
	audit.EventScrimBan:   "Scrim bans",
	audit.EventScrimUnban: "Scrim unbans",
	audit.EventFreeze:     "Freezes",
	audit.EventUnfreeze:   "Unfreezes",
	audit.EventFailure:    "Failed actions",
}

func formatReport(report analytics.Report) string {
	return fmt.Sprintf("Total: %s | INFO: %d | WARN: %d | CRIT: %d",
		humanize.Comma(int64(report.Total)),
		report.ByLevel[audit.LevelInfo],
		report.ByLevel[audit.LevelWarn],
		report.ByLevel[audit.LevelCrit])
}

func (b *Bot) reportEmbed(report analytics.Report, label string) *discordgo.MessageEmbed {
	msg := embed.NewEmbed().
		SetTitle("Moderation report").
		SetDescription(fmt.Sprintf("Activity over %s.\n%s", label, formatReport(report))).
		SetColor(b.cfg.EmbedColors.Action)

	if report.Total == 0 {
		msg.AddField("Events", "Nothing recorded.")
		return msg.Truncate().MessageEmbed
	}
	for _, row := range report.Events() {
		name, ok := eventLabels[row.Event]
		if !ok {
			name = strings.ReplaceAll(row.Event, "_", " ")
		}
		msg.AddField(name, humanize.Comma(int64(row.Count))).MakeFieldInline()
	}
	return msg.Truncate().MessageEmbed
}
