package audit

import (
	"context"
	"time"

	"modguard/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	CategorySpam       = "spam"
	CategoryAutomod    = "automod"
	CategoryModeration = "moderation"
	CategoryMember     = "member"
	CategoryError      = "error"
)

// Logger records every moderation event to the store and to the process log,
// and hands the entry to an optional notifier (the bot posts it to the logs
// channel). Notifier failures are the notifier's problem; Log never errors.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, userID, category, action, details string) {
	entry := storage.AuditLog{
		UserID:    userID,
		Level:     level,
		Category:  category,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddAuditLog(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("level", level),
		zap.String("user_id", userID),
		zap.String("category", category),
		zap.String("action", action),
		zap.String("details", details))
}
