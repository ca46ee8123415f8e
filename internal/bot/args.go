package bot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
)

var (
	errMissingUser     = errors.New("a user is required")
	errInvalidDuration = errors.New("durations look like 30m, 12h, 7d or 2w")
)

type banArgs struct {
	UserID         string
	Duration       time.Duration
	DeleteMessages bool
	Reason         string
}

type unbanArgs struct {
	Target string
	Reason string
}

type targetArgs struct {
	UserID string
}

type reportArgs struct {
	Period time.Duration
	Label  string
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		if opt != nil {
			out[opt.Name] = opt
		}
	}
	return out
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := options[name]
	if !ok {
		return ""
	}
	value, _ := opt.Value.(string)
	return strings.TrimSpace(value)
}

func boolOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	opt, ok := options[name]
	if !ok {
		return false
	}
	value, _ := opt.Value.(bool)
	return value
}

func parseBanArgs(options []*discordgo.ApplicationCommandInteractionDataOption) (banArgs, error) {
	opts := optionMap(options)
	args := banArgs{
		UserID:         stringOption(opts, "user"),
		DeleteMessages: boolOption(opts, "delete_messages"),
		Reason:         stringOption(opts, "reason"),
	}
	if args.UserID == "" {
		return banArgs{}, errMissingUser
	}
	duration, err := parseDuration(stringOption(opts, "duration"))
	if err != nil {
		return banArgs{}, err
	}
	args.Duration = duration
	return args, nil
}

func parseUnbanArgs(options []*discordgo.ApplicationCommandInteractionDataOption) (unbanArgs, error) {
	opts := optionMap(options)
	args := unbanArgs{Target: stringOption(opts, "user"), Reason: stringOption(opts, "reason")}
	if args.Target == "" {
		return unbanArgs{}, errMissingUser
	}
	return args, nil
}

func parseTargetArgs(options []*discordgo.ApplicationCommandInteractionDataOption) (targetArgs, error) {
	args := targetArgs{UserID: stringOption(optionMap(options), "user")}
	if args.UserID == "" {
		return targetArgs{}, errMissingUser
	}
	return args, nil
}

func parseReportArgs(options []*discordgo.ApplicationCommandInteractionDataOption) reportArgs {
	if stringOption(optionMap(options), "period") == "week" {
		return reportArgs{Period: 7 * 24 * time.Hour, Label: "the last 7 days"}
	}
	return reportArgs{Period: 24 * time.Hour, Label: "the last 24 hours"}
}

// parseDuration accepts a count with an m, h, d or w suffix as well as Go
// duration syntax. An empty value yields zero.
func parseDuration(value string) (time.Duration, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0, nil
	}

	unit := value[len(value)-1]
	count := value[:len(value)-1]
	var scale time.Duration
	switch unit {
	case 'd':
		scale = 24 * time.Hour
	case 'w':
		scale = 7 * 24 * time.Hour
	}
	if scale > 0 && count != "" && isDigits(count) {
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil || n <= 0 || n > math.MaxInt64/int64(scale) {
			return 0, errInvalidDuration
		}
		return time.Duration(n) * scale, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		return 0, errInvalidDuration
	}
	return duration, nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}
