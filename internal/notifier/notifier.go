package notifier

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"

	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/metrics"
	"github.com/eventdesk/booking-bot/internal/models"
)

// Sender is the part of the Telegram Bot API the notifier uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

const (
	KindSend = "send"
	KindEdit = "edit"
	KindTell = "tell"
)

// Delivery is the outcome of one outbound call
type Delivery struct {
	ChatID    int64
	MessageID int
	Err       error
}

// Report collects one Delivery per target, in target order
type Report struct {
	Kind       string
	Deliveries []Delivery
}

// Sent returns the locations of every successful delivery
func (r Report) Sent() []models.MessageRef {
	refs := make([]models.MessageRef, 0, len(r.Deliveries))
	for _, d := range r.Deliveries {
		if d.Err == nil {
			refs = append(refs, models.MessageRef{ChatID: d.ChatID, MessageID: d.MessageID})
		}
	}
	return refs
}

// Failed returns the failed deliveries
func (r Report) Failed() []Delivery {
	var failed []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

type Notifier struct {
	api     Sender
	limiter ratelimit.Limiter
	logger  *logging.Logger
}

// New creates a notifier allowing at most perSecond outbound calls per second.
// perSecond <= 0 disables pacing.
func New(api Sender, perSecond int, logger *logging.Logger) *Notifier {
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{api: api, limiter: limiter, logger: logger}
}

// fanOut runs call once per target concurrently and waits for all of them
func (n *Notifier) fanOut(ctx context.Context, kind string, targets []models.MessageRef, call func(models.MessageRef) Delivery) Report {
	report := Report{Kind: kind, Deliveries: make([]Delivery, len(targets))}

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target models.MessageRef) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				report.Deliveries[i] = Delivery{ChatID: target.ChatID, MessageID: target.MessageID, Err: err}
				return
			}
			n.limiter.Take()
			report.Deliveries[i] = call(target)
		}(i, target)
	}
	wg.Wait()

	for _, d := range report.Deliveries {
		metrics.RecordDelivery(kind, d.Err == nil)
		if d.Err != nil {
			n.logger.LogError("telegram delivery failed", d.Err, "kind", kind, "chat_id", d.ChatID, "message_id", d.MessageID)
		} else {
			n.logger.Debug("telegram delivery ok", "kind", kind, "chat_id", d.ChatID, "message_id", d.MessageID)
		}
	}
	return report
}

func chats(ids []int64) []models.MessageRef {
	refs := make([]models.MessageRef, len(ids))
	for i, id := range ids {
		refs[i] = models.MessageRef{ChatID: id}
	}
	return refs
}

// Broadcast sends the same text and keyboard to every chat
func (n *Notifier) Broadcast(ctx context.Context, chatIDs []int64, text string, markup tgbotapi.InlineKeyboardMarkup) Report {
	return n.fanOut(ctx, KindSend, chats(chatIDs), func(target models.MessageRef) Delivery {
		msg := tgbotapi.NewMessage(target.ChatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = markup

		sent, err := n.api.Send(msg)
		if err != nil {
			return Delivery{ChatID: target.ChatID, Err: err}
		}
		chatID := target.ChatID
		if sent.Chat != nil {
			chatID = sent.Chat.ID
		}
		return Delivery{ChatID: chatID, MessageID: sent.MessageID}
	})
}

// EditAll replaces the text and keyboard of every referenced message.
// A nil markup removes the keyboard.
func (n *Notifier) EditAll(ctx context.Context, refs []models.MessageRef, text string, markup *tgbotapi.InlineKeyboardMarkup) Report {
	return n.fanOut(ctx, KindEdit, refs, func(target models.MessageRef) Delivery {
		_, err := n.api.Request(EditMessage(target, text, markup))
		return Delivery{ChatID: target.ChatID, MessageID: target.MessageID, Err: err}
	})
}

// Tell sends a plain informational message to every chat
func (n *Notifier) Tell(ctx context.Context, chatIDs []int64, text string) Report {
	return n.fanOut(ctx, KindTell, chats(chatIDs), func(target models.MessageRef) Delivery {
		msg := tgbotapi.NewMessage(target.ChatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		sent, err := n.api.Send(msg)
		return Delivery{ChatID: target.ChatID, MessageID: sent.MessageID, Err: err}
	})
}

// EditMessage builds an HTML text edit; a nil markup removes the keyboard
func EditMessage(target models.MessageRef, text string, markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.EditMessageTextConfig {
	edit := tgbotapi.NewEditMessageText(target.ChatID, target.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = markup
	return edit
}
