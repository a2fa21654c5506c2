package bot

import "github.com/bwmarrin/discordgo"

var (
	permBanMembers      = int64(discordgo.PermissionBanMembers)
	permKickMembers     = int64(discordgo.PermissionKickMembers)
	permModerateMembers = int64(discordgo.PermissionModerateMembers)
	permManageMessages  = int64(discordgo.PermissionManageMessages)
	permManageChannels  = int64(discordgo.PermissionManageChannels)
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ban",
			Description:              "Ban a member from the server",
			DefaultMemberPermissions: &permBanMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to ban",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "reason for the ban",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "delete_messages",
					Description: "delete the member's messages from the last 7 days",
					Required:    false,
				},
			},
		},
		{
			Name:                     "kick",
			Description:              "Kick a member from the server",
			DefaultMemberPermissions: &permKickMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to kick",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "reason for the kick",
					Required:    false,
				},
			},
		},
		{
			Name:                     "timeout",
			Description:              "Time out a member",
			DefaultMemberPermissions: &permModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to time out",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "duration like 30m, 2h or 7d (28d max)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "reason for the timeout",
					Required:    false,
				},
			},
		},
		{
			Name:                     "untimeout",
			Description:              "Remove a member's timeout",
			DefaultMemberPermissions: &permModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to release",
					Required:    true,
				},
			},
		},
		{
			Name:                     "unban",
			Description:              "Remove a ban by user ID",
			DefaultMemberPermissions: &permBanMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "user_id",
					Description: "ID of the banned user",
					Required:    true,
				},
			},
		},
		{
			Name:                     "warn",
			Description:              "Warn a member",
			DefaultMemberPermissions: &permModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to warn",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "reason for the warning",
					Required:    true,
				},
			},
		},
		{
			Name:                     "warnings",
			Description:              "List a member's warnings",
			DefaultMemberPermissions: &permModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to inspect",
					Required:    true,
				},
			},
		},
		{
			Name:                     "clear",
			Description:              "Bulk-delete recent messages in this channel",
			DefaultMemberPermissions: &permManageMessages,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "number of messages to delete (1-100)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "only delete messages from this member",
					Required:    false,
				},
			},
		},
		{
			Name:                     "lockdown",
			Description:              "Lock or unlock this channel",
			DefaultMemberPermissions: &permManageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "lock or unlock",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "lock", Value: "lock"},
						{Name: "unlock", Value: "unlock"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "reason for the lockdown",
					Required:    false,
				},
			},
		},
		{
			Name:                     "slowmode",
			Description:              "Set this channel's slowmode interval",
			DefaultMemberPermissions: &permManageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seconds",
					Description: "seconds between messages (0 disables, 21600 max)",
					Required:    true,
				},
			},
		},
		{
			Name:                     "banlist",
			Description:              "List the server's bans",
			DefaultMemberPermissions: &permBanMembers,
		},
		{
			Name:        "help",
			Description: "List the bot's commands",
		},
		{
			Name:        "botinfo",
			Description: "Show information about the bot",
		},
		{
			Name:        "serverinfo",
			Description: "Show information about this server",
		},
		{
			Name:        "userinfo",
			Description: "Show information about a member",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to inspect (defaults to you)",
					Required:    false,
				},
			},
		},
		{
			Name:                     "antispam",
			Description:              "Inspect or reset the anti-spam tracker",
			DefaultMemberPermissions: &permModerateMembers,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "status or reset",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "status", Value: "status"},
						{Name: "reset", Value: "reset"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to reset (action=reset)",
					Required:    false,
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
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
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildID := guild.ID
		guildCmds, err := b.session.ApplicationCommands(appID, guildID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := desired[cmd.Name]; ok {
				continue
			}
			_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
		}
	}
	return nil
}
