package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"transferhub/config"
	"transferhub/pkg/logger"
	"transferhub/pkg/models"
	"transferhub/service"
)

// BacklogProcessor drains unprocessed bookings on operator request.
type BacklogProcessor interface {
	ProcessBacklog(ctx context.Context) (*models.BacklogResult, error)
}

// Bot is the operator console: queue inspection, manual override and
// repair commands, plus alert delivery for the monitor.
type Bot struct {
	Bot     *tele.Bot
	Log     logger.ILogger
	Cfg     *config.Config
	Svc     service.IServiceManager
	backlog BacklogProcessor

	mu        sync.Mutex
	adminChat int64
}

const commandTimeout = 30 * time.Second

var messages = map[string]map[string]string{
	"en": {
		"welcome":        "👋 Dispatch console ready. Commands: /queue /health /assign /override /renumber /reset /moveend /status /backlog",
		"no_entry":       "🚫 This bot is for dispatch operators only.",
		"queue_empty":    "📭 No active companies in rotation.",
		"usage_assign":   "Usage: /assign <booking_id>",
		"usage_override": "Usage: /override <booking_id> <company_id>",
		"usage_moveend":  "Usage: /moveend <company_id>",
		"usage_status":   "Usage: /status <company_id> <active|pending|inactive|suspended>",
		"reset_confirm":  "⚠️ Reset reorders every active company by name and clears assignment history. Continue?",
		"reset_cancel":   "❌ Reset cancelled.",
		"backlog_off":    "Backlog processing is not available.",
		"btn_queue":      "📋 Queue",
		"btn_health":     "🩺 Health",
		"btn_backlog":    "📦 Backlog",
	},
}

var (
	resetMenu       = &tele.ReplyMarkup{}
	btnResetConfirm = resetMenu.Data("✅ Yes, reset", "reset_confirm")
	btnResetCancel  = resetMenu.Data("❌ Cancel", "reset_cancel")
)

func New(cfg *config.Config, svc service.IServiceManager, log logger.ILogger) (*Bot, error) {
	if cfg.AdminBotToken == "" {
		return nil, errors.New("ADMIN_BOT_TOKEN is not set")
	}
	pref := tele.Settings{
		Token:  cfg.AdminBotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}
	bot := &Bot{
		Bot:       b,
		Log:       log,
		Cfg:       cfg,
		Svc:       svc,
		adminChat: cfg.AdminID,
	}
	bot.registerHandlers()
	return bot, nil
}

// SetBacklog wires the processor used by /backlog.
func (b *Bot) SetBacklog(p BacklogProcessor) {
	b.backlog = p
}

func (b *Bot) Start() {
	b.Log.Info("🤖 operator bot started")
	b.Bot.Start()
}

func (b *Bot) Stop() {
	b.Bot.Stop()
}

// Notify sends an alert to the operator chat.
func (b *Bot) Notify(ctx context.Context, message string) error {
	chat := b.adminChatID()
	if chat == 0 {
		return errors.New("operator chat unknown: set ADMIN_ID or send /start from the admin account")
	}
	_, err := b.Bot.Send(tele.ChatID(chat), message)
	return err
}

func (b *Bot) registerHandlers() {
	b.Bot.Use(b.adminOnly)

	b.Bot.Handle("/start", b.handleStart)
	b.Bot.Handle("/queue", b.handleQueue)
	b.Bot.Handle(messages["en"]["btn_queue"], b.handleQueue)
	b.Bot.Handle("/health", b.handleHealth)
	b.Bot.Handle(messages["en"]["btn_health"], b.handleHealth)
	b.Bot.Handle("/assign", b.handleAssign)
	b.Bot.Handle("/override", b.handleOverride)
	b.Bot.Handle("/renumber", b.handleRenumber)
	b.Bot.Handle("/reset", b.handleResetPrompt)
	b.Bot.Handle(&btnResetConfirm, b.handleResetConfirm)
	b.Bot.Handle(&btnResetCancel, b.handleResetCancel)
	b.Bot.Handle("/moveend", b.handleMoveToEnd)
	b.Bot.Handle("/status", b.handleStatus)
	b.Bot.Handle("/backlog", b.handleBacklog)
	b.Bot.Handle(messages["en"]["btn_backlog"], b.handleBacklog)
}

func (b *Bot) adminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !b.isAdmin(sender.ID, sender.Username) {
			return c.Send(messages["en"]["no_entry"])
		}
		b.rememberAdminChat(c)
		return next(c)
	}
}

func (b *Bot) isAdmin(id int64, username string) bool {
	return (b.Cfg.AdminID != 0 && id == b.Cfg.AdminID) ||
		(b.Cfg.AdminUsername != "" && username == b.Cfg.AdminUsername)
}

func (b *Bot) rememberAdminChat(c tele.Context) {
	if c.Chat() == nil {
		return
	}
	b.setAdminChat(c.Chat().ID)
}

func (b *Bot) setAdminChat(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Cfg.AdminID != 0 {
		return
	}
	b.adminChat = id
}

func (b *Bot) adminChatID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adminChat
}
