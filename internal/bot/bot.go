package bot

import (
	"context"
	"time"

	"queue-warden/internal/analytics"
	"queue-warden/internal/config"
	"queue-warden/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const commandTimeout = 30 * time.Second

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	engine    *moderation.Engine
	analytics *analytics.Service
	ctx       context.Context
}

// NewSession prepares an unopened session with the intents the
// moderation commands and rejoin handling need.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans
	session.StateEnabled = true
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, engine *moderation.Engine, analyticsService *analytics.Service) *Bot {
	return &Bot{
		cfg:       cfg,
		logger:    logger,
		session:   session,
		engine:    engine,
		analytics: analyticsService,
		ctx:       context.Background(),
	}
}

// Start connects to the gateway and syncs the guild's slash commands. Handler
// contexts derive from ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return b.registerCommands()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

// onGuildMemberAdd puts an open scrim ban or freeze back on a member who
// rejoins.
func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.GuildID != b.cfg.GuildID || event.User == nil || event.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if _, err := b.engine.Reapply(ctx, event.User.ID); err != nil {
		b.logger.Warn("reapply on rejoin failed", zap.String("user_id", event.User.ID), zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

// deferResponse acknowledges a command whose work may outlast the
// interaction deadline.
func (b *Bot) deferResponse(session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	return session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// finishDeferred replaces the deferred placeholder. Ephemeral replies are
// sent as a follow-up since the placeholder's visibility is already fixed.
func (b *Bot) finishDeferred(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if !ephemeral {
		embeds := []*discordgo.MessageEmbed{embed}
		if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
			b.logger.Warn("interaction edit failed", zap.Error(err))
		}
		return
	}
	_ = session.InteractionResponseDelete(interaction.Interaction)
	if _, err := session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	}); err != nil {
		b.logger.Warn("interaction follow-up failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

// errorEmbed shows expected outcomes verbatim and hides everything else.
func (b *Bot) errorEmbed(title string, err error) *discordgo.MessageEmbed {
	if reason := moderation.Reason(err); reason != nil {
		return b.commandEmbed(title, capitalize(reason.Error())+".", b.cfg.EmbedColors.Warning, nil)
	}
	return b.commandEmbed(title, "Something went wrong, please try again.", b.cfg.EmbedColors.Error, nil)
}
