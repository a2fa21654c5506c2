package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modguard/internal/modules/audit"
	"modguard/internal/storage"
	"modguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const maxSlowmode = 21600

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respond(session, interaction, "This command only works in a server.", true)
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case "ban":
		b.handleBan(ctx, session, interaction, options)
	case "kick":
		b.handleKick(ctx, session, interaction, options)
	case "timeout":
		b.handleTimeout(ctx, session, interaction, options)
	case "untimeout":
		b.handleUntimeout(ctx, session, interaction, options)
	case "unban":
		b.handleUnban(ctx, session, interaction, options)
	case "warn":
		b.handleWarn(ctx, session, interaction, options)
	case "warnings":
		b.handleWarnings(session, interaction, options)
	case "clear":
		b.handleClear(ctx, session, interaction, options)
	case "lockdown":
		b.handleLockdown(ctx, session, interaction, options)
	case "slowmode":
		b.handleSlowmode(ctx, session, interaction, options)
	case "banlist":
		b.handleBanlist(session, interaction)
	case "help":
		b.handleHelp(session, interaction)
	case "botinfo":
		b.handleBotInfo(session, interaction)
	case "serverinfo":
		b.handleServerInfo(session, interaction)
	case "userinfo":
		b.handleUserInfo(session, interaction, options)
	case "antispam":
		b.handleAntispam(ctx, session, interaction, options)
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

// checkTarget rejects actions against the invoker themselves or the bot.
func (b *Bot) checkTarget(session *discordgo.Session, interaction *discordgo.InteractionCreate, target *discordgo.User) bool {
	if target == nil {
		b.respond(session, interaction, "Could not resolve the target user.", true)
		return false
	}
	if interaction.Member != nil && interaction.Member.User != nil && target.ID == interaction.Member.User.ID {
		b.respond(session, interaction, "You cannot use this command on yourself.", true)
		return false
	}
	if session.State.User != nil && target.ID == session.State.User.ID {
		b.respond(session, interaction, "You cannot use this command on the bot.", true)
		return false
	}
	return true
}

func invokerID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	return ""
}

func (b *Bot) handleBan(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if !b.checkTarget(session, interaction, target) {
		return
	}

	reason := "No reason provided"
	if opt, ok := options["reason"]; ok {
		reason = opt.StringValue()
	}
	deleteDays := 0
	if opt, ok := options["delete_messages"]; ok && opt.BoolValue() {
		deleteDays = 7
	}

	if err := session.GuildBanCreateWithReason(interaction.GuildID, target.ID, reason, deleteDays); err != nil {
		b.logger.Warn("ban failed", zap.String("user_id", target.ID), zap.Error(err))
		b.respond(session, interaction, "Ban failed: "+err.Error(), true)
		return
	}

	b.audit.Log(ctx, audit.LevelCrit, target.ID, audit.CategoryModeration, "Member banned",
		fmt.Sprintf("by <@%s> reason=%q delete_days=%d", invokerID(interaction), reason, deleteDays))
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: target.Mention(), Inline: true},
		{Name: "Reason", Value: reason, Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Member Banned", "", b.cfg.Colors.Moderation, fields), false)
}

func (b *Bot) handleKick(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if !b.checkTarget(session, interaction, target) {
		return
	}

	reason := "No reason provided"
	if opt, ok := options["reason"]; ok {
		reason = opt.StringValue()
	}

	if err := session.GuildMemberDeleteWithReason(interaction.GuildID, target.ID, reason); err != nil {
		b.logger.Warn("kick failed", zap.String("user_id", target.ID), zap.Error(err))
		b.respond(session, interaction, "Kick failed: "+err.Error(), true)
		return
	}

	b.audit.Log(ctx, audit.LevelWarn, target.ID, audit.CategoryModeration, "Member kicked",
		fmt.Sprintf("by <@%s> reason=%q", invokerID(interaction), reason))
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: target.Mention(), Inline: true},
		{Name: "Reason", Value: reason, Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Member Kicked", "", b.cfg.Colors.Moderation, fields), false)
}

func (b *Bot) handleTimeout(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if !b.checkTarget(session, interaction, target) {
		return
	}

	durationOpt, ok := options["duration"]
	if !ok {
		b.respond(session, interaction, "A duration is required.", true)
		return
	}
	duration, err := utils.ParseDuration(durationOpt.StringValue())
	if err != nil {
		b.respond(session, interaction, err.Error(), true)
		return
	}

	reason := "No reason provided"
	if opt, ok := options["reason"]; ok {
		reason = opt.StringValue()
	}

	until := time.Now().Add(duration)
	if err := session.GuildMemberTimeout(interaction.GuildID, target.ID, &until); err != nil {
		b.logger.Warn("timeout failed", zap.String("user_id", target.ID), zap.Error(err))
		b.respond(session, interaction, "Timeout failed: "+err.Error(), true)
		return
	}

	b.audit.Log(ctx, audit.LevelWarn, target.ID, audit.CategoryModeration, "Member timed out",
		fmt.Sprintf("by <@%s> duration=%s reason=%q", invokerID(interaction), utils.FormatDuration(duration), reason))
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: target.Mention(), Inline: true},
		{Name: "Duration", Value: utils.FormatDuration(duration), Inline: true},
		{Name: "Reason", Value: reason, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Member Timed Out", "", b.cfg.Colors.Moderation, fields), false)
}

func (b *Bot) handleUntimeout(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if target == nil {
		b.respond(session, interaction, "Could not resolve the target user.", true)
		return
	}

	if err := session.GuildMemberTimeout(interaction.GuildID, target.ID, nil); err != nil {
		b.respond(session, interaction, "Untimeout failed: "+err.Error(), true)
		return
	}

	b.audit.Log(ctx, audit.LevelInfo, target.ID, audit.CategoryModeration, "Timeout removed",
		fmt.Sprintf("by <@%s>", invokerID(interaction)))
	fields := []*discordgo.MessageEmbedField{{Name: "User", Value: target.Mention(), Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Timeout Removed", "", b.cfg.Colors.Success, fields), false)
}

func (b *Bot) handleUnban(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user_id"]
	if !ok {
		b.respond(session, interaction, "A user ID is required.", true)
		return
	}
	userID := strings.TrimSpace(opt.StringValue())
	if userID == "" {
		b.respond(session, interaction, "A user ID is required.", true)
		return
	}

	if err := session.GuildBanDelete(interaction.GuildID, userID); err != nil {
		b.respond(session, interaction, "Unban failed: "+err.Error(), true)
		return
	}

	b.audit.Log(ctx, audit.LevelInfo, userID, audit.CategoryModeration, "Member unbanned",
		fmt.Sprintf("by <@%s>", invokerID(interaction)))
	fields := []*discordgo.MessageEmbedField{{Name: "User", Value: "<@" + userID + ">", Inline: true}}
	b.respondEmbed(session, interaction, b.commandEmbed("Member Unbanned", "", b.cfg.Colors.Success, fields), false)
}

func (b *Bot) handleWarn(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if !b.checkTarget(session, interaction, target) {
		return
	}

	reasonOpt, ok := options["reason"]
	if !ok {
		b.respond(session, interaction, "A reason is required.", true)
		return
	}
	reason := reasonOpt.StringValue()

	if err := b.store.AddWarning(ctx, storage.Warning{
		UserID:      target.ID,
		ModeratorID: invokerID(interaction),
		Reason:      reason,
	}); err != nil {
		b.logger.Warn("warning insert failed", zap.Error(err))
		b.respond(session, interaction, "Could not record the warning.", true)
		return
	}
	count, err := b.store.CountWarnings(ctx, target.ID)
	if err != nil {
		count = 0
	}

	// Best-effort DM; members with DMs closed just miss the notice.
	if dm, err := session.UserChannelCreate(target.ID); err == nil {
		_, _ = session.ChannelMessageSendEmbed(dm.ID, b.commandEmbed("You have been warned",
			reason, b.cfg.Colors.Warning, nil))
	}

	b.audit.Log(ctx, audit.LevelWarn, target.ID, audit.CategoryModeration, "Member warned",
		fmt.Sprintf("by <@%s> reason=%q total=%d", invokerID(interaction), reason, count))
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: target.Mention(), Inline: true},
		{Name: "Total Warnings", Value: fmt.Sprintf("%d", count), Inline: true},
		{Name: "Reason", Value: reason, Inline: false},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Member Warned", "", b.cfg.Colors.Warning, fields), false)
}

func (b *Bot) handleWarnings(session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	opt, ok := options["user"]
	if !ok {
		b.respond(session, interaction, "A target user is required.", true)
		return
	}
	target := opt.UserValue(session)
	if target == nil {
		b.respond(session, interaction, "Could not resolve the target user.", true)
		return
	}

	warnings, err := b.store.ListWarnings(context.Background(), target.ID)
	if err != nil {
		b.respond(session, interaction, "Could not load warnings.", true)
		return
	}
	if len(warnings) == 0 {
		b.respond(session, interaction, target.Mention()+" has no warnings.", true)
		return
	}

	var fields []*discordgo.MessageEmbedField
	for i, warning := range warnings {
		if i >= 10 {
			break
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("#%d — %s", warning.ID, warning.CreatedAt.Format(time.DateOnly)),
			Value:  fmt.Sprintf("%s (by <@%s>)", warning.Reason, warning.ModeratorID),
			Inline: false,
		})
	}
	title := fmt.Sprintf("Warnings for %s (%d)", warningDisplayName(target), len(warnings))
	b.respondEmbed(session, interaction, b.commandEmbed(title, "", b.cfg.Colors.Info, fields), true)
}

func warningDisplayName(user *discordgo.User) string {
	if user.Username != "" {
		return user.Username
	}
	return user.ID
}

// handleClear defers the reply because fetching and filtering messages can run
// past the 3-second interaction deadline.
func (b *Bot) handleClear(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	amountOpt, ok := options["amount"]
	if !ok {
		b.respond(session, interaction, "An amount is required.", true)
		return
	}
	amount := int(amountOpt.IntValue())
	if amount < 1 || amount > 100 {
		b.respond(session, interaction, "Amount must be between 1 and 100.", true)
		return
	}

	var targetID string
	if opt, ok := options["user"]; ok {
		if target := opt.UserValue(session); target != nil {
			targetID = target.ID
		}
	}

	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		return
	}

	messages, err := session.ChannelMessages(interaction.ChannelID, 100, "", "", "")
	if err != nil {
		b.editReply(session, interaction, "Could not fetch messages: "+err.Error())
		return
	}

	// Bulk delete rejects messages older than 14 days.
	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	var ids []string
	for _, message := range messages {
		if len(ids) >= amount {
			break
		}
		if message.Timestamp.Before(cutoff) {
			continue
		}
		if targetID != "" && (message.Author == nil || message.Author.ID != targetID) {
			continue
		}
		ids = append(ids, message.ID)
	}
	if len(ids) == 0 {
		b.editReply(session, interaction, "No deletable messages found.")
		return
	}

	if len(ids) == 1 {
		err = session.ChannelMessageDelete(interaction.ChannelID, ids[0])
	} else {
		err = session.ChannelMessagesBulkDelete(interaction.ChannelID, ids)
	}
	if err != nil {
		b.editReply(session, interaction, "Delete failed: "+err.Error())
		return
	}

	b.audit.Log(ctx, audit.LevelInfo, targetID, audit.CategoryModeration, "Messages cleared",
		fmt.Sprintf("by <@%s> count=%d channel=<#%s>", invokerID(interaction), len(ids), interaction.ChannelID))
	b.editReply(session, interaction, fmt.Sprintf("Deleted %d messages.", len(ids)))
}

func (b *Bot) editReply(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	_, _ = session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Content: &content})
}

func (b *Bot) handleLockdown(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actionOpt, ok := options["action"]
	if !ok {
		b.respond(session, interaction, "An action is required.", true)
		return
	}
	lock := actionOpt.StringValue() == "lock"

	reason := "No reason provided"
	if opt, ok := options["reason"]; ok {
		reason = opt.StringValue()
	}

	channel, err := session.Channel(interaction.ChannelID)
	if err != nil {
		b.respond(session, interaction, "Could not inspect this channel.", true)
		return
	}

	// The @everyone role shares the guild's ID; preserve any other bits in
	// its existing overwrite.
	var allow, deny int64
	for _, overwrite := range channel.PermissionOverwrites {
		if overwrite.Type == discordgo.PermissionOverwriteTypeRole && overwrite.ID == interaction.GuildID {
			allow = overwrite.Allow
			deny = overwrite.Deny
			break
		}
	}
	if lock {
		deny |= discordgo.PermissionSendMessages
		allow &^= discordgo.PermissionSendMessages
	} else {
		deny &^= discordgo.PermissionSendMessages
	}

	if err := session.ChannelPermissionSet(interaction.ChannelID, interaction.GuildID, discordgo.PermissionOverwriteTypeRole, allow, deny); err != nil {
		b.respond(session, interaction, "Lockdown update failed: "+err.Error(), true)
		return
	}

	action := "Channel unlocked"
	color := b.cfg.Colors.Success
	if lock {
		action = "Channel locked"
		color = b.cfg.Colors.Moderation
	}
	b.audit.Log(ctx, audit.LevelWarn, "", audit.CategoryModeration, action,
		fmt.Sprintf("by <@%s> channel=<#%s> reason=%q", invokerID(interaction), interaction.ChannelID, reason))
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: "<#" + interaction.ChannelID + ">", Inline: true},
		{Name: "Reason", Value: reason, Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed(action, "", color, fields), false)
}

func (b *Bot) handleSlowmode(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	secondsOpt, ok := options["seconds"]
	if !ok {
		b.respond(session, interaction, "A seconds value is required.", true)
		return
	}
	seconds := int(secondsOpt.IntValue())
	if seconds < 0 || seconds > maxSlowmode {
		b.respond(session, interaction, fmt.Sprintf("Seconds must be between 0 and %d.", maxSlowmode), true)
		return
	}

	if _, err := session.ChannelEditComplex(interaction.ChannelID, &discordgo.ChannelEdit{
		RateLimitPerUser: &seconds,
	}); err != nil {
		b.respond(session, interaction, "Slowmode update failed: "+err.Error(), true)
		return
	}

	value := "disabled"
	if seconds > 0 {
		value = utils.FormatDuration(time.Duration(seconds) * time.Second)
	}
	b.audit.Log(ctx, audit.LevelInfo, "", audit.CategoryModeration, "Slowmode updated",
		fmt.Sprintf("by <@%s> channel=<#%s> interval=%s", invokerID(interaction), interaction.ChannelID, value))
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: "<#" + interaction.ChannelID + ">", Inline: true},
		{Name: "Interval", Value: value, Inline: true},
	}
	b.respondEmbed(session, interaction, b.commandEmbed("Slowmode Updated", "", b.cfg.Colors.Info, fields), false)
}

func (b *Bot) handleBanlist(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	bans, err := session.GuildBans(interaction.GuildID, 25, "", "")
	if err != nil {
		b.respond(session, interaction, "Could not fetch the ban list: "+err.Error(), true)
		return
	}
	if len(bans) == 0 {
		b.respond(session, interaction, "No bans on this server.", true)
		return
	}

	var lines []string
	for _, ban := range bans {
		if ban.User == nil {
			continue
		}
		reason := ban.Reason
		if reason == "" {
			reason = "no reason recorded"
		}
		lines = append(lines, fmt.Sprintf("%s (%s) — %s", ban.User.Username, ban.User.ID, reason))
	}
	description := strings.Join(lines, "\n")
	b.respondEmbed(session, interaction, b.commandEmbed(
		fmt.Sprintf("Bans (%d shown)", len(lines)), description, b.cfg.Colors.Info, nil), true)
}

func (b *Bot) handleAntispam(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	actionOpt, ok := options["action"]
	if !ok {
		b.respond(session, interaction, "An action is required.", true)
		return
	}

	switch actionOpt.StringValue() {
	case "status":
		fields := []*discordgo.MessageEmbedField{
			{Name: "Message Limit", Value: fmt.Sprintf("%d", b.cfg.Spam.MessageLimit), Inline: true},
			{Name: "Window", Value: utils.FormatDuration(b.cfg.Spam.TimeWindow()), Inline: true},
			{Name: "Timeout", Value: utils.FormatDuration(b.cfg.Spam.TimeoutDuration()), Inline: true},
			{Name: "Frequency Rule", Value: fmt.Sprintf("%t", b.cfg.Spam.FrequencyRuleEnabled), Inline: true},
			{Name: "Tracked Users", Value: fmt.Sprintf("%d", b.detector.TrackedUsers()), Inline: true},
		}
		b.respondEmbed(session, interaction, b.commandEmbed("Anti-Spam Status", "", b.cfg.Colors.Info, fields), true)
	case "reset":
		opt, ok := options["user"]
		if !ok {
			b.respond(session, interaction, "A target user is required for reset.", true)
			return
		}
		target := opt.UserValue(session)
		if target == nil {
			b.respond(session, interaction, "Could not resolve the target user.", true)
			return
		}
		b.detector.Reset(target.ID)
		b.audit.Log(ctx, audit.LevelInfo, target.ID, audit.CategorySpam, "Tracker reset",
			fmt.Sprintf("by <@%s>", invokerID(interaction)))
		fields := []*discordgo.MessageEmbedField{{Name: "User", Value: target.Mention(), Inline: true}}
		b.respondEmbed(session, interaction, b.commandEmbed("Anti-Spam Tracker Reset", "", b.cfg.Colors.Success, fields), true)
	default:
		b.respond(session, interaction, "Unknown action.", true)
	}
}
