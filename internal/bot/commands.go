package bot

import "github.com/bwmarrin/discordgo"

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    true,
	}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason shown in the log and to the user",
		MaxLength:   512,
	}
}

func durationOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: description,
	}
}

func commandSet() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ban",
			Description: "Ban a user from the server",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to ban"),
				durationOption("How long, e.g. 12h or 7d. Permanent when omitted"),
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "delete_messages",
					Description: "Delete the last 7 days of messages",
				},
				reasonOption(),
			},
		},
		{
			Name:        "unban",
			Description: "Lift a server ban",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "user",
					Description: "User id or tag of the banned user",
					Required:    true,
				},
				reasonOption(),
			},
		},
		{
			Name:        "scrimban",
			Description: "Ban a member from scrims",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Member to scrim ban"),
				durationOption("How long, e.g. 12h or 2w. Defaults to the configured length"),
				reasonOption(),
			},
		},
		{
			Name:        "scrimunban",
			Description: "Lift a scrim ban and restore roles",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Member to scrim unban"),
				reasonOption(),
			},
		},
		{
			Name:        "freeze",
			Description: "Freeze a member for a screenshare",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Member to freeze"),
			},
		},
		{
			Name:        "unfreeze",
			Description: "Unfreeze a member and restore roles",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Member to unfreeze"),
			},
		},
		{
			Name:        "screensharers",
			Description: "Show the screenshare leaderboard",
		},
		{
			Name:        "modreport",
			Description: "Summarize recent moderation activity",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "day or week",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
	}
}

// registerCommands syncs the configured guild's commands: existing ones are
// edited, missing ones created and stale ones removed.
func (b *Bot) registerCommands() error {
	commands := commandSet()
	appID := b.session.State.User.ID
	guildID := b.cfg.GuildID

	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
	}
	return nil
}
