// Package guildtest provides an in-memory moderation.Guild for tests.
package guildtest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"queue-warden/internal/moderation"

	"github.com/bwmarrin/discordgo"
)

var ErrInjected = errors.New("injected failure")

type Direct struct {
	UserID string
	Embed  *discordgo.MessageEmbed
}

type Post struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
	Content   string
}

type Guild struct {
	mu      sync.Mutex
	members map[string]moderation.Member
	roles   []moderation.Role
	bans    map[string]moderation.BanEntry

	Directs []Direct
	Posts   []Post

	FailBan      error
	FailUnban    error
	FailSetRoles error
	FailBans     error
	// FailSetRolesAfter lets the first n role replacements succeed before
	// FailSetRoles applies.
	FailSetRolesAfter int

	BanCalls       int
	UnbanCalls     int
	SetRolesCalls  int
	LastDeleteDays int
}

func New(roles ...moderation.Role) *Guild {
	return &Guild{
		members: make(map[string]moderation.Member),
		roles:   roles,
		bans:    make(map[string]moderation.BanEntry),
	}
}

func (g *Guild) AddMember(member moderation.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	member.Roles = slices.Clone(member.Roles)
	g.members[member.ID] = member
}

func (g *Guild) RemoveMember(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, userID)
}

func (g *Guild) AddBan(entry moderation.BanEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bans[entry.UserID] = entry
}

func (g *Guild) IsBanned(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.bans[userID]
	return ok
}

// MemberRoles returns the member's roles sorted, or nil if absent.
func (g *Guild) MemberRoles(userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	member, ok := g.members[userID]
	if !ok {
		return nil
	}
	roles := slices.Clone(member.Roles)
	sort.Strings(roles)
	return roles
}

func (g *Guild) Member(_ context.Context, userID string) (moderation.Member, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	member, ok := g.members[userID]
	if !ok {
		return moderation.Member{}, false, nil
	}
	member.Roles = slices.Clone(member.Roles)
	return member, true, nil
}

func (g *Guild) Roles(context.Context) ([]moderation.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.roles), nil
}

func (g *Guild) SetMemberRoles(_ context.Context, userID string, roles []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.SetRolesCalls++
	if g.FailSetRoles != nil && g.SetRolesCalls > g.FailSetRolesAfter {
		return g.FailSetRoles
	}
	member, ok := g.members[userID]
	if !ok {
		return errors.New("unknown member")
	}
	member.Roles = slices.Clone(roles)
	g.members[userID] = member
	return nil
}

func (g *Guild) Ban(_ context.Context, userID string, deleteMessageDays int, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.BanCalls++
	g.LastDeleteDays = deleteMessageDays
	if g.FailBan != nil {
		return g.FailBan
	}
	tag := userID
	if member, ok := g.members[userID]; ok {
		tag = member.Tag
		delete(g.members, userID)
	}
	g.bans[userID] = moderation.BanEntry{UserID: userID, Tag: tag}
	return nil
}

func (g *Guild) Unban(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.UnbanCalls++
	if g.FailUnban != nil {
		return g.FailUnban
	}
	if _, ok := g.bans[userID]; !ok {
		return errors.New("unknown ban")
	}
	delete(g.bans, userID)
	return nil
}

func (g *Guild) LookupBan(_ context.Context, userID string) (moderation.BanEntry, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailBans != nil {
		return moderation.BanEntry{}, false, g.FailBans
	}
	entry, ok := g.bans[userID]
	return entry, ok, nil
}

func (g *Guild) Bans(context.Context) ([]moderation.BanEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailBans != nil {
		return nil, g.FailBans
	}
	out := make([]moderation.BanEntry, 0, len(g.bans))
	for _, entry := range g.bans {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (g *Guild) SendDirect(_ context.Context, userID string, message *discordgo.MessageEmbed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Directs = append(g.Directs, Direct{UserID: userID, Embed: message})
	return nil
}

func (g *Guild) PostEmbed(_ context.Context, channelID string, message *discordgo.MessageEmbed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Posts = append(g.Posts, Post{ChannelID: channelID, Embed: message})
	return nil
}

func (g *Guild) PostMessage(_ context.Context, channelID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Posts = append(g.Posts, Post{ChannelID: channelID, Content: content})
	return nil
}
