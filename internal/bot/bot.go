package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"taskflow/internal/config"
	"taskflow/internal/service"
)

// Bot exposes synchronization controls to operators over Telegram.
type Bot struct {
	api       *tgbotapi.BotAPI
	taskSvc   *service.TaskService
	digestSvc *service.DigestService
	sweepSvc  *service.SweepService
	admins    map[int64]bool
	timeout   time.Duration
	log       logrus.FieldLogger
	// sweeping is held while an operator-triggered sweep runs.
	sweeping sync.Mutex
}

func New(cfg *config.Config, taskSvc *service.TaskService, digestSvc *service.DigestService, sweepSvc *service.SweepService, log logrus.FieldLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.WithField("account", api.Self.UserName).Info("bot authorized")

	return &Bot{
		api:       api,
		taskSvc:   taskSvc,
		digestSvc: digestSvc,
		sweepSvc:  sweepSvc,
		admins:    adminSet(cfg.TelegramAdminIDs),
		timeout:   cfg.SyncTimeout,
		log:       log,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.WithError(err).Warn("handle message")
		}
	}

	return nil
}

// NotifySweep pushes a sweep report to every admin chat.
func (b *Bot) NotifySweep(report service.SweepReport) {
	text := service.SweepSummary(report)
	for id := range b.admins {
		if err := b.sendText(id, text); err != nil {
			b.log.WithError(err).WithField("chat_id", id).Warn("send sweep report")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !isAdmin(b.admins, msg.From.ID) {
		b.log.WithField("user_id", msg.From.ID).Warn("rejected message from non-admin")
		return b.sendText(msg.Chat.ID, "⛔ This bot is restricted to operators.")
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Send /help for the list of commands.")
	}

	b.log.WithFields(logrus.Fields{
		"user_id": msg.From.ID,
		"command": msg.Command(),
		"args":    msg.CommandArguments(),
	}).Info("command received")
	return b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return b.sendText(msg.Chat.ID, helpText())
	case "sync":
		return b.handleSync(ctx, msg)
	case "occurrences":
		return b.handleOccurrences(ctx, msg)
	case "sweep":
		return b.handleSweep(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /sync &lt;task id&gt;")
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	task, result, err := b.taskSvc.Resync(ctx, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, failureText(taskID, err))
	}
	return b.sendText(msg.Chat.ID, service.SyncSummary(*task, result))
}

func (b *Bot) handleOccurrences(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseTaskID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: /occurrences &lt;task id&gt;")
	}

	text, err := b.digestSvc.TaskDigest(ctx, taskID, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, failureText(taskID, err))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleSweep(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.sweeping.TryLock() {
		return b.sendText(msg.Chat.ID, "⏳ A sweep is already running.")
	}
	defer b.sweeping.Unlock()

	if err := b.sendText(msg.Chat.ID, "♻️ Sweep started…"); err != nil {
		return err
	}
	report, err := b.sweepSvc.Run(ctx, 0)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Sweep aborted: %s", html.EscapeString(err.Error())))
	}
	return b.sendText(msg.Chat.ID, service.SweepSummary(report))
}

func (b *Bot) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func helpText() string {
	return "ℹ️ <b>Commands</b>\n" +
		"• /sync &lt;id&gt; — synchronize the occurrences of a task\n" +
		"• /occurrences &lt;id&gt; — list a task's occurrences\n" +
		"• /sweep — synchronize every recurring task now\n" +
		"• /help — this message"
}

func failureText(taskID uint, err error) string {
	if errors.Is(err, service.ErrTaskNotFound) {
		return fmt.Sprintf("Task #%d not found.", taskID)
	}
	return fmt.Sprintf("Task #%d failed: %s", taskID, html.EscapeString(err.Error()))
}

func parseTaskID(args string) (uint, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(args), "#")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return 0, fmt.Errorf("task id must be positive")
	}
	return uint(value), nil
}

func adminSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func isAdmin(admins map[int64]bool, userID int64) bool {
	return admins[userID]
}
