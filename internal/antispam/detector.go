package antispam

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"modguard/internal/config"
	"modguard/internal/modules/audit"
	"modguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	// Purge bounds: only messages this recent are removed, never more than
	// purgeQuota per incident, and Discord refuses deletions past 14 days.
	purgeWindow  = 15 * time.Minute
	purgeMaxAge  = 14 * 24 * time.Hour
	purgeQuota   = 10
	channelDelay = 200 * time.Millisecond

	// Cooldown is deliberately short so a still-spamming user is caught
	// again quickly; the consequence duration is not the re-arm interval.
	enforceCooldown = 5 * time.Second
)

// Session is the slice of the Discord API the detector needs. Satisfied by
// *discordgo.Session.
type Session interface {
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Sleep(d time.Duration)
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (t realTimer) Stop() bool { return t.t.Stop() }

// Detector wires the ingest filter, history store, rule set and enforcement
// together. All state is owned here and injected at construction; nothing is
// package-global.
type Detector struct {
	mu      sync.Mutex
	guard   map[string]struct{}
	history *History
	rules   *RuleSet
	cfg     config.SpamConfig
	censor  []string
	clock   Clock
	session Session
	audit   *audit.Logger
	logger  *zap.Logger
}

func New(cfg config.SpamConfig, censorKeywords []string, session Session, auditLogger *audit.Logger, logger *zap.Logger) *Detector {
	censor := make([]string, 0, len(censorKeywords))
	for _, keyword := range censorKeywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			censor = append(censor, keyword)
		}
	}
	return &Detector{
		guard:   make(map[string]struct{}),
		history: NewHistory(cfg.TimeWindow()),
		rules:   NewRuleSet(cfg.MessageLimit, cfg.TimeoutDuration(), cfg.FrequencyRuleEnabled),
		cfg:     cfg,
		censor:  censor,
		clock:   realClock{},
		session: session,
		audit:   auditLogger,
		logger:  logger,
	}
}

func (d *Detector) WithClock(clock Clock) {
	d.clock = clock
}

// HandleMessage runs the full pipeline for one inbound message. Spam rules
// apply to everyone, privileged senders included; the bypass capability only
// exempts from the keyword censor and zeroes the enforcement cooldown.
func (d *Detector) HandleMessage(ctx context.Context, msg *discordgo.MessageCreate, bypass bool) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}

	if !bypass {
		if keyword := d.matchCensor(msg.Content); keyword != "" {
			if err := d.session.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
				d.logger.Warn("censor delete failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
			}
			d.audit.Log(ctx, audit.LevelWarn, msg.Author.ID, audit.CategoryAutomod, "Message deleted",
				fmt.Sprintf("keyword censor matched %q in <#%s>", keyword, msg.ChannelID))
			return
		}
	}

	now := d.clock.Now()
	window := d.history.Record(msg.Author.ID, TrackedMessage{
		Content:     msg.Content,
		ChannelID:   msg.ChannelID,
		Timestamp:   now,
		Attachments: len(msg.Attachments),
		Embeds:      len(msg.Embeds),
	})

	if d.inCooldown(msg.Author.ID) {
		return
	}

	match := d.rules.Evaluate(window)
	if match == nil {
		return
	}
	d.enforce(ctx, msg, match, bypass)
}

// enforce runs the consequence of a rule match. The guard entry is inserted
// before the first network call; that ordering is what prevents a second
// in-flight message from starting a duplicate enforcement.
func (d *Detector) enforce(ctx context.Context, msg *discordgo.MessageCreate, match *RuleMatch, bypass bool) {
	userID := msg.Author.ID

	d.mu.Lock()
	if _, held := d.guard[userID]; held {
		d.mu.Unlock()
		return
	}
	d.guard[userID] = struct{}{}
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.releaseGuard(userID)
			d.logger.Error("enforcement panic", zap.String("user_id", userID), zap.Any("panic", r))
			d.audit.Log(ctx, audit.LevelCrit, userID, audit.CategoryError, "Anti-spam failure", fmt.Sprintf("%v", r))
		}
	}()

	until := d.clock.Now().Add(match.Timeout)
	reason := fmt.Sprintf("Auto-moderation: %s (%d violations)", match.Trigger, match.Count)
	timeoutErr := d.session.GuildMemberTimeout(msg.GuildID, userID, &until)
	if timeoutErr != nil {
		// Usually the target outranks the bot; degrade to delete-only.
		d.logger.Warn("timeout failed", zap.String("user_id", userID), zap.Error(timeoutErr))
	}

	deleted := d.purgeRecent(userID, msg.ChannelID)

	d.audit.Log(ctx, audit.LevelWarn, userID, audit.CategorySpam,
		actionSummary(timeoutErr == nil, match.Timeout),
		fmt.Sprintf("trigger=%s%s count=%d window=%ds deleted=%d channel=<#%s> reason=%q",
			match.Trigger, channelContext(match), match.Count, d.cfg.TimeWindowMs/1000, deleted, msg.ChannelID, reason))

	d.history.Clear(userID)

	cooldown := enforceCooldown
	if bypass {
		cooldown = 0
	}
	if cooldown > 0 {
		d.clock.AfterFunc(cooldown, func() { d.releaseGuard(userID) })
	} else {
		d.releaseGuard(userID)
	}
}

// purgeRecent removes the user's recent messages from every channel seen in
// their window plus the triggering channel. Per-channel failures are isolated
// and cross-channel deletions are paced to respect API throughput limits.
func (d *Detector) purgeRecent(userID, triggerChannelID string) int {
	channels := d.history.Channels(userID)
	found := false
	for _, channelID := range channels {
		if channelID == triggerChannelID {
			found = true
			break
		}
	}
	if !found {
		channels = append(channels, triggerChannelID)
	}

	now := d.clock.Now()
	total := 0
	for i, channelID := range channels {
		if total >= purgeQuota {
			break
		}
		messages, err := d.session.ChannelMessages(channelID, 100, "", "", "")
		if err != nil {
			d.logger.Warn("purge fetch failed", zap.String("channel_id", channelID), zap.Error(err))
			continue
		}

		var ids []string
		for _, message := range messages {
			if message.Author == nil || message.Author.ID != userID {
				continue
			}
			age := now.Sub(message.Timestamp)
			if age >= purgeWindow || age >= purgeMaxAge {
				continue
			}
			ids = append(ids, message.ID)
			if total+len(ids) >= purgeQuota {
				break
			}
		}
		if len(ids) == 0 {
			continue
		}

		if len(ids) == 1 {
			err = d.session.ChannelMessageDelete(channelID, ids[0])
		} else {
			err = d.session.ChannelMessagesBulkDelete(channelID, ids)
		}
		if err != nil {
			d.logger.Warn("purge delete failed", zap.String("channel_id", channelID), zap.Error(err))
			continue
		}
		total += len(ids)

		if i < len(channels)-1 && total < purgeQuota {
			d.clock.Sleep(channelDelay)
		}
	}
	return total
}

// Reset clears a user's history and cooldown state; used by the operator
// command to undo a false positive. Safe to call repeatedly.
func (d *Detector) Reset(userID string) {
	d.history.Clear(userID)
	d.releaseGuard(userID)
}

// Sweep evicts stale history entries; the bot runs it on a fixed interval.
func (d *Detector) Sweep() {
	d.history.Sweep(d.clock.Now())
}

func (d *Detector) TrackedUsers() int {
	return d.history.TrackedUsers()
}

func (d *Detector) inCooldown(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, held := d.guard[userID]
	return held
}

func (d *Detector) releaseGuard(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.guard, userID)
}

func (d *Detector) matchCensor(content string) string {
	if content == "" || len(d.censor) == 0 {
		return ""
	}
	lower := strings.ToLower(content)
	for _, keyword := range d.censor {
		if strings.Contains(lower, keyword) {
			return keyword
		}
	}
	return ""
}

func actionSummary(timedOut bool, duration time.Duration) string {
	if !timedOut {
		return "Messages deleted (timeout failed)"
	}
	return fmt.Sprintf("%s timeout applied", utils.FormatDuration(duration))
}

func channelContext(match *RuleMatch) string {
	if match.SameChannel {
		return " (same channel)"
	}
	return " (cross-channel)"
}
