package automod

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modguard/internal/config"
	"modguard/internal/modules/audit"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const purgeLimit = 50

// Session is the slice of the Discord API the username monitor needs.
// Satisfied by *discordgo.Session.
type Session interface {
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
}

// Module bans members whose display name matches the configured banned
// username, at join time or when they rename themselves into it. A single
// whitelisted user is protected from the auto-ban.
type Module struct {
	cfg     config.AutomodConfig
	session Session
	audit   *audit.Logger
	logger  *zap.Logger
}

func New(cfg config.AutomodConfig, session Session, auditLogger *audit.Logger, logger *zap.Logger) *Module {
	return &Module{cfg: cfg, session: session, audit: auditLogger, logger: logger}
}

func (m *Module) HandleMemberAdd(ctx context.Context, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil {
		return
	}
	if m.matchesBannedName(displayName(event.Member)) {
		m.applyUsernameBan(ctx, event.Member.GuildID, event.User, "Banned Username Detection")
	}

	created, err := discordgo.SnowflakeTimestamp(event.User.ID)
	details := ""
	if err == nil {
		details = "account created: " + created.Format(time.DateOnly)
	}
	m.audit.Log(ctx, audit.LevelInfo, event.User.ID, audit.CategoryMember, "Member joined", details)
}

func (m *Module) HandleMemberUpdate(ctx context.Context, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.User == nil {
		return
	}
	if event.BeforeUpdate != nil && m.matchesBannedName(displayName(event.BeforeUpdate)) {
		return
	}
	if !m.matchesBannedName(displayName(event.Member)) {
		return
	}
	m.applyUsernameBan(ctx, event.Member.GuildID, event.User, "Banned Username Change")
}

func (m *Module) HandleMemberRemove(ctx context.Context, event *discordgo.GuildMemberRemove) {
	if event.User == nil {
		return
	}
	m.audit.Log(ctx, audit.LevelInfo, event.User.ID, audit.CategoryMember, "Member left", "")
}

func (m *Module) applyUsernameBan(ctx context.Context, guildID string, user *discordgo.User, trigger string) {
	if m.cfg.WhitelistUserID != "" && user.ID == m.cfg.WhitelistUserID {
		m.audit.Log(ctx, audit.LevelInfo, user.ID, audit.CategoryAutomod, "Whitelist protection applied",
			fmt.Sprintf("trigger=%q display name %q matched but user is whitelisted", trigger, m.cfg.BannedUsername))
		return
	}
	if !m.cfg.BanBannedUsername {
		m.audit.Log(ctx, audit.LevelWarn, user.ID, audit.CategoryAutomod, "Banned username detected",
			fmt.Sprintf("trigger=%q auto-ban disabled", trigger))
		return
	}

	purged := m.purgeUserMessages(guildID, user.ID)

	reason := fmt.Sprintf("Auto-moderation: display name %q detected (purged %d messages)", m.cfg.BannedUsername, purged)
	if err := m.session.GuildBanCreateWithReason(guildID, user.ID, reason, 0); err != nil {
		m.logger.Warn("username auto-ban failed", zap.String("user_id", user.ID), zap.Error(err))
		m.audit.Log(ctx, audit.LevelWarn, user.ID, audit.CategoryError, "Auto-ban failed", err.Error())
		return
	}

	m.audit.Log(ctx, audit.LevelCrit, user.ID, audit.CategoryAutomod, "Permanent ban applied",
		fmt.Sprintf("trigger=%q purged=%d", trigger, purged))
}

// purgeUserMessages bulk-deletes up to purgeLimit recent messages by the user
// across the guild's text channels before the ban lands. Per-channel failures
// are skipped.
func (m *Module) purgeUserMessages(guildID, userID string) int {
	channels, err := m.session.GuildChannels(guildID)
	if err != nil {
		m.logger.Warn("purge channel list failed", zap.Error(err))
		return 0
	}

	remaining := purgeLimit
	total := 0
	for _, channel := range channels {
		if remaining <= 0 {
			break
		}
		if channel == nil || channel.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		messages, err := m.session.ChannelMessages(channel.ID, 100, "", "", "")
		if err != nil {
			continue
		}

		var ids []string
		for _, message := range messages {
			if message.Author == nil || message.Author.ID != userID {
				continue
			}
			ids = append(ids, message.ID)
			if len(ids) >= remaining {
				break
			}
		}
		if len(ids) == 0 {
			continue
		}
		if err := m.session.ChannelMessagesBulkDelete(channel.ID, ids); err != nil {
			continue
		}
		total += len(ids)
		remaining -= len(ids)
	}
	return total
}

func (m *Module) matchesBannedName(name string) bool {
	if m.cfg.BannedUsername == "" || name == "" {
		return false
	}
	return strings.EqualFold(name, m.cfg.BannedUsername)
}

func displayName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		return member.User.Username
	}
	return ""
}
