// Package gateway adapts a discordgo session to the moderation engines for a
// single guild. REST calls are paced by a local token bucket.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"queue-warden/internal/metrics"
	"queue-warden/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const bansPageSize = 1000

// Session is the subset of *discordgo.Session used by Guild.
type Session interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberEdit(guildID, userID string, data *discordgo.GuildMemberParams, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildBan(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.GuildBan, error)
	GuildBans(guildID string, limit int, beforeID, afterID string, options ...discordgo.RequestOption) ([]*discordgo.GuildBan, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Config struct {
	RequestsPerSecond float64
	Burst             int
}

type Guild struct {
	session Session
	state   *discordgo.State
	guildID string
	limiter *rate.Limiter
	metrics *metrics.Collector
}

func New(session Session, state *discordgo.State, guildID string, cfg Config, collector *metrics.Collector) *Guild {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Guild{
		session: session,
		state:   state,
		guildID: guildID,
		limiter: rate.NewLimiter(limit, burst),
		metrics: collector,
	}
}

// FromSession binds a live discordgo session, using its state cache for reads.
func FromSession(session *discordgo.Session, guildID string, cfg Config, collector *metrics.Collector) *Guild {
	return New(session, session.State, guildID, cfg, collector)
}

func (g *Guild) wait(ctx context.Context) error {
	if g.limiter.Tokens() < 1 {
		g.metrics.Throttled()
	}
	return g.limiter.Wait(ctx)
}

func (g *Guild) Member(ctx context.Context, userID string) (moderation.Member, bool, error) {
	if g.state != nil {
		if member, err := g.state.Member(g.guildID, userID); err == nil && member != nil {
			return toMember(member), true, nil
		}
	}
	if err := g.wait(ctx); err != nil {
		return moderation.Member{}, false, err
	}
	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser) {
			return moderation.Member{}, false, nil
		}
		return moderation.Member{}, false, err
	}
	return toMember(member), true, nil
}

func (g *Guild) Roles(ctx context.Context) ([]moderation.Role, error) {
	var roles []*discordgo.Role
	if g.state != nil {
		if guild, err := g.state.Guild(g.guildID); err == nil && len(guild.Roles) > 0 {
			roles = guild.Roles
		}
	}
	if roles == nil {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		fetched, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		roles = fetched
	}

	out := make([]moderation.Role, 0, len(roles))
	for _, role := range roles {
		if role == nil {
			continue
		}
		out = append(out, moderation.Role{ID: role.ID, Position: role.Position, Managed: role.Managed})
	}
	return out, nil
}

func (g *Guild) SetMemberRoles(ctx context.Context, userID string, roles []string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	next := append([]string{}, roles...)
	_, err := g.session.GuildMemberEdit(g.guildID, userID, &discordgo.GuildMemberParams{Roles: &next}, discordgo.WithContext(ctx))
	return err
}

func (g *Guild) Ban(ctx context.Context, userID string, deleteMessageDays int, reason string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.session.GuildBanCreateWithReason(g.guildID, userID, reason, deleteMessageDays, discordgo.WithContext(ctx))
}

func (g *Guild) Unban(ctx context.Context, userID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	return g.session.GuildBanDelete(g.guildID, userID, discordgo.WithContext(ctx))
}

func (g *Guild) LookupBan(ctx context.Context, userID string) (moderation.BanEntry, bool, error) {
	if err := g.wait(ctx); err != nil {
		return moderation.BanEntry{}, false, err
	}
	ban, err := g.session.GuildBan(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err, discordgo.ErrCodeUnknownBan, discordgo.ErrCodeUnknownUser) {
			return moderation.BanEntry{}, false, nil
		}
		return moderation.BanEntry{}, false, err
	}
	return toBanEntry(ban), ban != nil && ban.User != nil, nil
}

// Bans pages through the guild's full ban list.
func (g *Guild) Bans(ctx context.Context) ([]moderation.BanEntry, error) {
	var out []moderation.BanEntry
	after := ""
	for {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		page, err := g.session.GuildBans(g.guildID, bansPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, ban := range page {
			if ban == nil || ban.User == nil {
				continue
			}
			out = append(out, toBanEntry(ban))
			after = ban.User.ID
		}
		if len(page) < bansPageSize {
			return out, nil
		}
	}
}

func (g *Guild) SendDirect(ctx context.Context, userID string, message *discordgo.MessageEmbed) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	channel, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	return g.PostEmbed(ctx, channel.ID, message)
}

func (g *Guild) PostEmbed(ctx context.Context, channelID string, message *discordgo.MessageEmbed) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	_, err := g.session.ChannelMessageSendEmbed(channelID, message, discordgo.WithContext(ctx))
	return err
}

func (g *Guild) PostMessage(ctx context.Context, channelID, content string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	_, err := g.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

func toMember(member *discordgo.Member) moderation.Member {
	out := moderation.Member{Roles: append([]string{}, member.Roles...)}
	if member.User != nil {
		out.ID = member.User.ID
		out.Tag = member.User.String()
		out.Bot = member.User.Bot
	}
	return out
}

func toBanEntry(ban *discordgo.GuildBan) moderation.BanEntry {
	if ban == nil || ban.User == nil {
		return moderation.BanEntry{}
	}
	return moderation.BanEntry{UserID: ban.User.ID, Tag: ban.User.String()}
}

func isNotFound(err error, codes ...int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		for _, code := range codes {
			if restErr.Message.Code == code {
				return true
			}
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
