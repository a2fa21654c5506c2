package automod

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"modguard/internal/config"
	"modguard/internal/modules/audit"
	"modguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type banCall struct {
	guildID string
	userID  string
	reason  string
}

type fakeSession struct {
	mu       sync.Mutex
	bans     []banCall
	messages map[string][]*discordgo.Message
	deleted  map[string][]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: make(map[string][]*discordgo.Message),
		deleted:  make(map[string][]string),
	}
}

func (f *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans = append(f.bans, banCall{guildID: guildID, userID: userID, reason: reason})
	return nil
}

func (f *fakeSession) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var channels []*discordgo.Channel
	for channelID := range f.messages {
		channels = append(channels, &discordgo.Channel{ID: channelID, Type: discordgo.ChannelTypeGuildText})
	}
	return channels, nil
}

func (f *fakeSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Message{}, f.messages[channelID]...), nil
}

func (f *fakeSession) ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[channelID] = append(f.deleted[channelID], messages...)
	return nil
}

func testConfig() config.AutomodConfig {
	return config.AutomodConfig{
		BannedUsername:    "BD",
		BanBannedUsername: true,
	}
}

func newTestModule(t *testing.T, cfg config.AutomodConfig, session *fakeSession) (*Module, *storage.Store) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	auditLogger := audit.NewLogger(store, zap.NewNop())
	return New(cfg, session, auditLogger, zap.NewNop()), store
}

func member(guildID, userID, username, nick string) *discordgo.Member {
	return &discordgo.Member{
		GuildID: guildID,
		Nick:    nick,
		User:    &discordgo.User{ID: userID, Username: username},
	}
}

func TestBanOnJoinWithBannedUsername(t *testing.T) {
	session := newFakeSession()
	module, _ := newTestModule(t, testConfig(), session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "123456789012345678", "BD", ""),
	})

	if len(session.bans) != 1 {
		t.Fatalf("expected 1 ban, got %d", len(session.bans))
	}
	ban := session.bans[0]
	if ban.guildID != "guild" || ban.userID != "123456789012345678" {
		t.Fatalf("unexpected ban target: %+v", ban)
	}
	if !strings.Contains(ban.reason, "BD") {
		t.Fatalf("ban reason should name the match: %q", ban.reason)
	}
}

func TestNickMatchIsCaseInsensitive(t *testing.T) {
	session := newFakeSession()
	module, _ := newTestModule(t, testConfig(), session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "123456789012345678", "innocent", "bd"),
	})

	if len(session.bans) != 1 {
		t.Fatalf("expected nick match to ban, got %d bans", len(session.bans))
	}
}

func TestNormalJoinNotBanned(t *testing.T) {
	session := newFakeSession()
	module, store := newTestModule(t, testConfig(), session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "123456789012345678", "regular", ""),
	})

	if len(session.bans) != 0 {
		t.Fatalf("expected no ban, got %d", len(session.bans))
	}

	logs, err := store.ListAuditLogs(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "Member joined" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a member-joined audit record")
	}
}

func TestWhitelistedUserProtected(t *testing.T) {
	cfg := testConfig()
	cfg.WhitelistUserID = "42"
	session := newFakeSession()
	module, store := newTestModule(t, cfg, session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "42", "BD", ""),
	})

	if len(session.bans) != 0 {
		t.Fatalf("whitelisted user must not be banned, got %d bans", len(session.bans))
	}

	logs, err := store.ListAuditLogs(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "Whitelist protection applied" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a whitelist-protection audit record")
	}
}

func TestBanDisabledOnlyAudits(t *testing.T) {
	cfg := testConfig()
	cfg.BanBannedUsername = false
	session := newFakeSession()
	module, store := newTestModule(t, cfg, session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "123456789012345678", "BD", ""),
	})

	if len(session.bans) != 0 {
		t.Fatalf("ban disabled, got %d bans", len(session.bans))
	}
	logs, _ := store.ListAuditLogs(context.Background(), time.Time{})
	found := false
	for _, entry := range logs {
		if entry.Action == "Banned username detected" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a detection audit record")
	}
}

func TestRenameIntoBannedName(t *testing.T) {
	session := newFakeSession()
	module, _ := newTestModule(t, testConfig(), session)

	module.HandleMemberUpdate(context.Background(), &discordgo.GuildMemberUpdate{
		Member:       member("guild", "123456789012345678", "innocent", "BD"),
		BeforeUpdate: member("guild", "123456789012345678", "innocent", "original"),
	})

	if len(session.bans) != 1 {
		t.Fatalf("expected rename to trigger ban, got %d", len(session.bans))
	}
}

func TestAlreadyBannedNameUpdateIgnored(t *testing.T) {
	session := newFakeSession()
	module, _ := newTestModule(t, testConfig(), session)

	module.HandleMemberUpdate(context.Background(), &discordgo.GuildMemberUpdate{
		Member:       member("guild", "123456789012345678", "BD", ""),
		BeforeUpdate: member("guild", "123456789012345678", "BD", ""),
	})

	if len(session.bans) != 0 {
		t.Fatalf("expected no repeat ban, got %d", len(session.bans))
	}
}

func TestPurgeBeforeBanTargetsOnlyOffender(t *testing.T) {
	session := newFakeSession()
	session.messages["general"] = []*discordgo.Message{
		{ID: "m1", Author: &discordgo.User{ID: "offender"}},
		{ID: "m2", Author: &discordgo.User{ID: "bystander"}},
		{ID: "m3", Author: &discordgo.User{ID: "offender"}},
	}
	module, _ := newTestModule(t, testConfig(), session)

	module.HandleMemberAdd(context.Background(), &discordgo.GuildMemberAdd{
		Member: member("guild", "offender", "BD", ""),
	})

	deleted := session.deleted["general"]
	if len(deleted) != 2 {
		t.Fatalf("expected 2 purged messages, got %v", deleted)
	}
	for _, id := range deleted {
		if id == "m2" {
			t.Fatal("bystander message must not be purged")
		}
	}
	if len(session.bans) != 1 {
		t.Fatalf("expected ban after purge, got %d", len(session.bans))
	}
	if !strings.Contains(session.bans[0].reason, "purged 2") {
		t.Fatalf("reason should record purge count: %q", session.bans[0].reason)
	}
}
