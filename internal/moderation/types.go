package moderation

import (
	"context"
	"time"

	"queue-warden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

type Kind int

const (
	KindServer Kind = iota
	KindScrim
)

func (k Kind) String() string {
	if k == KindScrim {
		return "scrim"
	}
	return "server"
}

// Expiry is either permanent or a point in time. The zero value is permanent.
type Expiry struct {
	at time.Time
}

func Permanent() Expiry { return Expiry{} }

func At(t time.Time) Expiry { return Expiry{at: t} }

func (e Expiry) IsPermanent() bool { return e.at.IsZero() }

func (e Expiry) Time() (time.Time, bool) {
	return e.at, !e.at.IsZero()
}

type Member struct {
	ID    string
	Tag   string
	Bot   bool
	Roles []string
}

type Role struct {
	ID       string
	Position int
	Managed  bool
}

type BanEntry struct {
	UserID string
	Tag    string
}

// Guild is the slice of the Discord API the engines drive. Implementations
// are bound to a single guild.
type Guild interface {
	Member(ctx context.Context, userID string) (Member, bool, error)
	Roles(ctx context.Context) ([]Role, error)
	SetMemberRoles(ctx context.Context, userID string, roles []string) error
	Ban(ctx context.Context, userID string, deleteMessageDays int, reason string) error
	Unban(ctx context.Context, userID string) error
	LookupBan(ctx context.Context, userID string) (BanEntry, bool, error)
	Bans(ctx context.Context) ([]BanEntry, error)
	SendDirect(ctx context.Context, userID string, message *discordgo.MessageEmbed) error
	PostEmbed(ctx context.Context, channelID string, message *discordgo.MessageEmbed) error
	PostMessage(ctx context.Context, channelID, content string) error
}

type Store interface {
	GetScheduledUnban(ctx context.Context, userID string) (storage.ScheduledUnban, bool, error)
	UpsertScheduledUnban(ctx context.Context, record storage.ScheduledUnban) error
	DeleteScheduledUnban(ctx context.Context, userID string) error
	GetScrimBan(ctx context.Context, userID string) (storage.ScrimBan, bool, error)
	UpsertScrimBan(ctx context.Context, record storage.ScrimBan) error
	DeleteScrimBan(ctx context.Context, userID string) error
	GetFreeze(ctx context.Context, userID string) (storage.Freeze, bool, error)
	CreateFreeze(ctx context.Context, record storage.Freeze) error
	DeleteFreeze(ctx context.Context, userID string) error
	IncrementScreensharer(ctx context.Context, userID string) (int, error)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type BanRequest struct {
	Kind           Kind
	TargetID       string
	ExecutorID     string
	Duration       time.Duration
	DeleteMessages bool
	Reason         string
}

type BanSummary struct {
	Kind         Kind
	TargetID     string
	TargetTag    string
	Expiry       Expiry
	Rebanned     bool
	UnfrozeFirst bool
	SavedRoles   []string
}

// UnbanRequest targets a user by id or, for server bans, by tag. An empty
// ExecutorID marks an automatic expiry.
type UnbanRequest struct {
	Kind       Kind
	Target     string
	ExecutorID string
	Reason     string
}

type UnbanSummary struct {
	Kind          Kind
	TargetID      string
	TargetTag     string
	Automatic     bool
	RestoredRoles []string
}

type FreezeRequest struct {
	TargetID   string
	ExecutorID string
}

type FreezeSummary struct {
	TargetID   string
	TargetTag  string
	SavedRoles []string
}

type UnfreezeRequest struct {
	TargetID   string
	ExecutorID string
}

type UnfreezeSummary struct {
	TargetID          string
	TargetTag         string
	RestoredRoles     []string
	ScreensharerCount int
}
