package bot

import (
	"context"
	"sync"
	"time"

	"modguard/internal/antispam"
	"modguard/internal/config"
	"modguard/internal/modules/audit"
	"modguard/internal/modules/automod"
	"modguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	sweepInterval      = 5 * time.Minute
	auditRetentionDays = 30
)

type Bot struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	audit    *audit.Logger
	session  *discordgo.Session
	detector *antispam.Detector
	automod  *automod.Module

	logChannelMu sync.Mutex
	logChannelID string

	startTime time.Time
	sweepStop chan struct{}
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		session:   session,
		startTime: time.Now(),
		sweepStop: make(chan struct{}),
	}

	b.detector = antispam.New(cfg.Spam, cfg.Automod.CensorKeywords, session, auditLogger, logger)
	b.automod = automod.New(cfg.Automod, session, auditLogger, logger)
	auditLogger.SetNotifier(b.notifyAudit)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startSweeper()
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	close(b.sweepStop)
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))

	if err := session.UpdateWatchStatus(0, b.cfg.BotActivity); err != nil {
		b.logger.Warn("activity update failed", zap.Error(err))
	}
	b.resolveLogChannel()
}

// resolveLogChannel finds the moderation log channel by name, creating it
// read-only for members when it does not exist yet.
func (b *Bot) resolveLogChannel() {
	if b.cfg.GuildID == "" || b.cfg.LogsChannel == "" {
		return
	}

	channels, err := b.session.GuildChannels(b.cfg.GuildID)
	if err != nil {
		b.logger.Warn("log channel lookup failed", zap.Error(err))
		return
	}
	for _, channel := range channels {
		if channel == nil || channel.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if channel.Name == b.cfg.LogsChannel {
			b.setLogChannel(channel.ID)
			return
		}
	}

	created, err := b.session.GuildChannelCreateComplex(b.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name:  b.cfg.LogsChannel,
		Type:  discordgo.ChannelTypeGuildText,
		Topic: "Moderation logs",
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				ID:    b.cfg.GuildID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory,
				Deny:  discordgo.PermissionSendMessages,
			},
		},
	})
	if err != nil {
		b.logger.Warn("log channel create failed", zap.Error(err))
		return
	}
	b.logger.Info("created log channel", zap.String("channel_id", created.ID))
	b.setLogChannel(created.ID)
}

func (b *Bot) setLogChannel(channelID string) {
	b.logChannelMu.Lock()
	b.logChannelID = channelID
	b.logChannelMu.Unlock()
}

func (b *Bot) logChannel() string {
	b.logChannelMu.Lock()
	defer b.logChannelMu.Unlock()
	return b.logChannelID
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	b.detector.HandleMessage(ctx, msg, b.senderBypass(msg))
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.Member.GuildID == "" {
		return
	}
	b.automod.HandleMemberAdd(context.Background(), event)
}

func (b *Bot) onGuildMemberUpdate(session *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.Member.GuildID == "" {
		return
	}
	b.automod.HandleMemberUpdate(context.Background(), event)
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil {
		return
	}
	b.automod.HandleMemberRemove(context.Background(), event)
}

// senderBypass reports whether the author holds the bypass capability: an
// administrative permission or one of the configured bypass roles. Bypass
// exempts from the keyword censor and from the enforcement cooldown, not from
// the spam rules themselves.
func (b *Bot) senderBypass(msg *discordgo.MessageCreate) bool {
	member := msg.Member
	if member == nil {
		return false
	}

	if len(b.cfg.Automod.BypassRoles) > 0 {
		bypassSet := make(map[string]struct{}, len(b.cfg.Automod.BypassRoles))
		for _, roleID := range b.cfg.Automod.BypassRoles {
			bypassSet[roleID] = struct{}{}
		}
		for _, roleID := range member.Roles {
			if _, ok := bypassSet[roleID]; ok {
				return true
			}
		}
	}

	guild, err := b.session.State.Guild(msg.GuildID)
	if err != nil || guild == nil {
		guild, _ = b.session.Guild(msg.GuildID)
	}
	if guild == nil {
		return false
	}

	perms := int64(0)
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}

	const modMask = discordgo.PermissionAdministrator | discordgo.PermissionManageServer | discordgo.PermissionManageMessages
	return perms&modMask != 0
}

func (b *Bot) startSweeper() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		retention := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		defer retention.Stop()
		for {
			select {
			case <-ticker.C:
				b.detector.Sweep()
			case <-retention.C:
				if err := b.store.CleanupAuditLogs(context.Background(), auditRetentionDays); err != nil {
					b.logger.Warn("audit cleanup failed", zap.Error(err))
				}
			case <-b.sweepStop:
				return
			}
		}
	}()
}

// notifyAudit posts every audit record to the moderation log channel. Send
// failures are logged locally and never retried.
func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	_ = ctx
	channelID := b.logChannel()
	if channelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, b.buildAuditEmbed(entry)); err != nil {
		b.logger.Warn("audit post failed", zap.Error(err))
	}
}

func (b *Bot) buildAuditEmbed(entry storage.AuditLog) *discordgo.MessageEmbed {
	title := "Moderation Action"
	color := b.cfg.Colors.Moderation
	switch entry.Category {
	case audit.CategoryAutomod:
		title = "Auto-Moderation"
		color = b.cfg.Colors.Warning
	case audit.CategorySpam:
		title = "Anti-Spam Action"
		color = b.cfg.Colors.Error
	case audit.CategoryMember:
		title = "Member Event"
		color = b.cfg.Colors.Info
	case audit.CategoryError:
		title = "Error"
		color = b.cfg.Colors.Error
	}

	userValue := "System"
	if entry.UserID != "" {
		userValue = "<@" + entry.UserID + ">"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: userValue, Inline: true},
		{Name: "Action", Value: entry.Action, Inline: true},
	}
	if entry.Details != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Details", Value: entry.Details, Inline: false})
	}

	return &discordgo.MessageEmbed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "modguard"},
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

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
