package bot

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"modguard/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var verificationLevels = map[discordgo.VerificationLevel]string{
	discordgo.VerificationLevelNone:     "None",
	discordgo.VerificationLevelLow:      "Low",
	discordgo.VerificationLevelMedium:   "Medium",
	discordgo.VerificationLevelHigh:     "High",
	discordgo.VerificationLevelVeryHigh: "Very High",
}

func (b *Bot) handleHelp(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	b.respondEmbed(session, interaction, b.commandEmbed("Commands", "", b.cfg.Colors.Info, helpFields()), true)
}

func helpFields() []*discordgo.MessageEmbedField {
	return []*discordgo.MessageEmbedField{
		{
			Name: "Moderation",
			Value: strings.Join([]string{
				"`/ban <user> [reason] [delete_messages]` — ban a member",
				"`/unban <user_id>` — remove a ban by ID",
				"`/kick <user> [reason]` — kick a member",
				"`/timeout <user> <duration> [reason]` — time out a member (e.g. 30m, 2h, 7d)",
				"`/untimeout <user>` — remove a timeout",
				"`/warn <user> <reason>` — warn a member",
				"`/warnings <user>` — list a member's warnings",
				"`/clear <amount> [user]` — bulk-delete recent messages",
				"`/lockdown <lock|unlock> [reason]` — lock or unlock this channel",
				"`/slowmode <seconds>` — set this channel's slowmode",
				"`/banlist` — list the server's bans",
			}, "\n"),
			Inline: false,
		},
		{
			Name: "Anti-Spam",
			Value: strings.Join([]string{
				"`/antispam status` — show the engine's tunables and tracked users",
				"`/antispam reset <user>` — clear a member's spam tracker",
			}, "\n"),
			Inline: false,
		},
		{
			Name: "Utility",
			Value: strings.Join([]string{
				"`/botinfo` — bot version and uptime",
				"`/serverinfo` — details about this server",
				"`/userinfo [user]` — details about a member",
			}, "\n"),
			Inline: false,
		},
	}
}

func (b *Bot) handleBotInfo(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	name := "unknown"
	if session.State.User != nil {
		name = session.State.User.Username
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Bot", Value: name, Inline: true},
		{Name: "Servers", Value: fmt.Sprintf("%d", len(session.State.Guilds)), Inline: true},
		{Name: "Uptime", Value: utils.FormatDuration(time.Since(b.startTime)), Inline: true},
		{Name: "Library", Value: "discordgo " + discordgo.VERSION, Inline: true},
		{Name: "Runtime", Value: runtime.Version(), Inline: true},
		{Name: "Tracked Users", Value: fmt.Sprintf("%d", b.detector.TrackedUsers()), Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Bot Information", "", b.cfg.Colors.Info, fields), true)
}

func (b *Bot) handleServerInfo(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	guild, err := session.State.Guild(interaction.GuildID)
	if err != nil || guild == nil {
		guild, err = session.Guild(interaction.GuildID)
	}
	if err != nil || guild == nil {
		b.respond(session, interaction, "Could not fetch server information.", true)
		return
	}

	text, voice, categories := 0, 0, 0
	if channels, err := session.GuildChannels(guild.ID); err == nil {
		for _, channel := range channels {
			switch channel.Type {
			case discordgo.ChannelTypeGuildText:
				text++
			case discordgo.ChannelTypeGuildVoice:
				voice++
			case discordgo.ChannelTypeGuildCategory:
				categories++
			}
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Server", Value: guild.Name, Inline: true},
		{Name: "ID", Value: guild.ID, Inline: true},
		{Name: "Owner", Value: "<@" + guild.OwnerID + ">", Inline: true},
		{Name: "Members", Value: fmt.Sprintf("%d", guild.MemberCount), Inline: true},
		{Name: "Roles", Value: fmt.Sprintf("%d", len(guild.Roles)), Inline: true},
		{Name: "Channels", Value: fmt.Sprintf("%d text, %d voice, %d categories", text, voice, categories), Inline: true},
	}
	if created, err := discordgo.SnowflakeTimestamp(guild.ID); err == nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Created", Value: created.Format(time.DateOnly), Inline: true,
		})
	}
	if level, ok := verificationLevels[guild.VerificationLevel]; ok {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Verification", Value: level, Inline: true,
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:   "Boosts",
		Value:  fmt.Sprintf("Tier %d (%d boosts)", guild.PremiumTier, guild.PremiumSubscriptionCount),
		Inline: true,
	})
	if guild.Description != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Description", Value: guild.Description, Inline: false,
		})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Server Information", "", b.cfg.Colors.Info, fields), false)
}

func (b *Bot) handleUserInfo(session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	var target *discordgo.User
	if opt, ok := options["user"]; ok {
		target = opt.UserValue(session)
	} else if interaction.Member != nil {
		target = interaction.Member.User
	}
	if target == nil {
		b.respond(session, interaction, "Could not resolve the target user.", true)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Username", Value: target.Username, Inline: true},
		{Name: "ID", Value: target.ID, Inline: true},
	}
	if created, err := discordgo.SnowflakeTimestamp(target.ID); err == nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Account Created", Value: created.Format(time.DateOnly), Inline: true,
		})
	}

	color := b.cfg.Colors.Info
	member, err := session.GuildMember(interaction.GuildID, target.ID)
	if err == nil && member != nil {
		if !member.JoinedAt.IsZero() {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Joined Server", Value: member.JoinedAt.Format(time.DateOnly), Inline: true,
			})
		}
		if member.Nick != "" {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Nickname", Value: member.Nick, Inline: true,
			})
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Roles", Value: fmt.Sprintf("%d", len(member.Roles)), Inline: true,
		})
		if until := member.CommunicationDisabledUntil; until != nil && until.After(time.Now()) {
			color = b.cfg.Colors.Warning
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: "Timeout", Value: "until " + until.Format(time.RFC1123), Inline: false,
			})
		}
	} else {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Member", Value: "not in this server", Inline: true,
		})
	}
	if target.Bot {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Account Type", Value: "Bot", Inline: true,
		})
	}
	b.respondEmbed(session, interaction, b.commandEmbed("User Information", "", color, fields), false)
}
