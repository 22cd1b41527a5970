package bot

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/eventdesk/booking-bot/internal/db"
	"github.com/eventdesk/booking-bot/internal/errreport"
	"github.com/eventdesk/booking-bot/internal/lifecycle"
	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/metrics"
	"github.com/eventdesk/booking-bot/internal/models"
	"github.com/eventdesk/booking-bot/internal/notifier"
	"github.com/eventdesk/booking-bot/internal/render"
)

// API is the subset of *tgbotapi.BotAPI the bot needs
type API interface {
	notifier.Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api      API
	machine  *lifecycle.Machine
	notifier *notifier.Notifier
	managers models.Managers
	location *time.Location
	counter  db.StatusCounter
	now      func() time.Time
	logger   *logging.Logger
}

type Config struct {
	Managers models.Managers
	Location *time.Location
	// Counter backs the /status command; optional.
	Counter db.StatusCounter
}

func New(api API, machine *lifecycle.Machine, n *notifier.Notifier, cfg Config, logger *logging.Logger) *Bot {
	if logger == nil {
		logger = logging.Discard()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:      api,
		machine:  machine,
		notifier: n,
		managers: cfg.Managers,
		location: loc,
		counter:  cfg.Counter,
		now:      time.Now,
		logger:   logger,
	}
}

// Run long-polls Telegram for updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// RegisterWebhook points Telegram at url, dropping updates queued while offline
func (b *Bot) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	wh.DropPendingUpdates = true

	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	b.logger.Info("webhook registered")
	return nil
}

func (b *Bot) RemoveWebhook() error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	b.logger.Info("webhook deleted")
	return nil
}

// HandleUpdate dispatches one Telegram update. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
			errreport.Recovered(r, map[string]string{"component": "bot"})
			if update.CallbackQuery != nil {
				b.answer(update.CallbackQuery.ID, failureText, true)
			}
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case update.Message != nil:
		b.handleMessage(update.Message)
	}
}

func (b *Bot) isManager(userID int64) bool {
	_, ok := b.managers.Lookup(userID)
	return ok
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	switch msg.Command() {
	case "start":
		b.handleStart(msg, userID)
	case "help":
		b.reply(msg, "Каманды:\n"+
			"/new_request - тэставая заяўка\n"+
			"/status - колькасць заявак па статусах\n"+
			"/help - гэтая даведка")
	case "new_request":
		b.handleNewRequest(ctx, msg, userID)
	case "status":
		b.handleStatus(ctx, msg, userID)
	default:
		b.reply(msg, "Невядомая каманда. /help")
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || !b.isManager(msg.From.ID) {
		return
	}
	b.reply(msg, "Выкарыстоўвайце /help, каб убачыць каманды.")
}

func (b *Bot) handleStart(msg *tgbotapi.Message, userID int64) {
	name := msg.From.FirstName
	if name == "" {
		name = "Невядомы"
	}

	if b.isManager(userID) {
		b.reply(msg, fmt.Sprintf("Прывітанне, <b>%s</b>! Вы менеджэр.", html.EscapeString(name)))
		b.logger.Info("manager started", "user_id", userID)
		return
	}
	b.reply(msg, fmt.Sprintf("Прывітанне, %s! Для доступу звярніцеся да адміністратара.", html.EscapeString(name)))
	b.logger.Info("non-manager started", "user_id", userID)
}

func (b *Bot) handleNewRequest(ctx context.Context, msg *tgbotapi.Message, userID int64) {
	if !b.isManager(userID) {
		b.reply(msg, "Толькі менеджэры могуць ствараць тэставыя заяўкі.")
		return
	}

	id, err := b.CreateAndNotify(ctx, models.ClientData{
		Timestamp: b.now().Format(time.RFC3339),
		Name:      "Test Client via Cmd",
		Phone:     "000000000",
		Messenger: "@testcmd",
		Details:   "Event via Command",
	}, "command")
	if err != nil {
		b.fail(err, "failed to create test request", "user_id", userID)
		b.reply(msg, failureText)
		return
	}

	b.reply(msg, fmt.Sprintf("Тэставая заяўка #%d створана і адпраўлена менеджэрам.", id))
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message, userID int64) {
	if !b.isManager(userID) {
		b.reply(msg, "Толькі менеджэры могуць праглядаць статыстыку.")
		return
	}
	if b.counter == nil {
		b.reply(msg, "Статыстыка недаступная.")
		return
	}

	counts, err := b.counter.CountByStatus(ctx)
	if err != nil {
		b.fail(err, "failed to count requests", "user_id", userID)
		b.reply(msg, failureText)
		return
	}

	b.reply(msg, formatCounts(counts))
}

func formatCounts(counts map[models.Status]int) string {
	if len(counts) == 0 {
		return "📊 Заявак пакуль няма."
	}

	statuses := make([]string, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, string(s))
		total += n
	}
	sort.Strings(statuses)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 Усяго заявак: %d\n\n", total))
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("%s: %d\n", html.EscapeString(s), counts[models.Status(s)]))
	}
	return sb.String()
}

// CreateAndNotify stores a new request and sends it to every manager.
// Managers that could not be reached are logged and skipped.
func (b *Bot) CreateAndNotify(ctx context.Context, data models.ClientData, source string) (int64, error) {
	id, req, err := b.machine.Create(ctx, data)
	if err != nil {
		return 0, err
	}

	text, kb := render.Initial(id, req, b.managers, b.location)
	report := b.notifier.Broadcast(ctx, b.managers.IDs(), text, kb)

	stored, err := b.machine.AttachMessages(ctx, id, report.Sent())
	if err != nil {
		return id, fmt.Errorf("failed to record messages for request %d: %w", id, err)
	}
	// A press that landed mid-broadcast edited only the copies known at the
	// time, so bring every copy in line with the stored state.
	if stored.Status != models.StatusNew {
		text, kb := render.Update(id, stored, b.location)
		edited := b.notifier.EditAll(ctx, stored.Messages, text, kb)
		b.logger.Info("request changed during broadcast, copies refreshed",
			"request_id", id,
			"status", stored.Status,
			"edited", len(edited.Sent()),
		)
	}

	metrics.RecordRequestCreated(source)
	b.logger.Info("request created",
		"request_id", id,
		"source", source,
		"notified", len(report.Sent()),
		"failed", len(report.Failed()),
	)
	return id, nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.LogError("failed to send reply", err, "chat_id", msg.Chat.ID)
	}
}

func (b *Bot) answer(callbackID, text string, alert bool) {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.LogError("failed to answer callback", err, "callback_id", callbackID)
	}
}

// fail logs and reports an unexpected error
func (b *Bot) fail(err error, msg string, args ...any) {
	b.logger.LogError(msg, err, args...)
	errreport.Capture(err, map[string]string{"component": "bot"})
}
