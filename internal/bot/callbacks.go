package bot

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/eventdesk/booking-bot/internal/callback"
	"github.com/eventdesk/booking-bot/internal/lifecycle"
	"github.com/eventdesk/booking-bot/internal/metrics"
	"github.com/eventdesk/booking-bot/internal/models"
	"github.com/eventdesk/booking-bot/internal/render"
)

const failureText = "Адбылася памылка апрацоўкі!"

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if !callback.IsRequestAction(cq.Data) {
		b.answer(cq.ID, "", false)
		return
	}

	action, err := callback.Parse(cq.Data)
	if err != nil {
		b.logger.Warn("bad callback data", "data", cq.Data, "error", err)
		b.answer(cq.ID, "Памылка: няправільныя даныя кнопкі.", true)
		return
	}

	var userID int64
	if cq.From != nil {
		userID = cq.From.ID
	}

	var out lifecycle.Outcome
	switch action.Kind {
	case callback.KindClaim:
		out, err = b.machine.Claim(ctx, userID, action.RequestID, action.ManagerID)
	case callback.KindUpdateStatus:
		out, err = b.machine.SetStatus(ctx, userID, action.RequestID, action.Status)
	case callback.KindComplete:
		out, err = b.machine.Complete(ctx, userID, action.RequestID)
	}
	if err != nil {
		b.fail(err, "transition failed", "action", string(action.Kind), "request_id", action.RequestID)
		metrics.RecordTransition(string(action.Kind), "error")
		b.answer(cq.ID, failureText, true)
		return
	}

	metrics.RecordTransition(string(action.Kind), out.Kind.String())
	b.logger.Debug("transition",
		"action", string(action.Kind),
		"request_id", action.RequestID,
		"user_id", userID,
		"outcome", out.Kind.String(),
	)

	switch out.Kind {
	case lifecycle.Unauthorized:
		b.answer(cq.ID, "Толькі менеджэры могуць апрацоўваць заяўкі.", true)
	case lifecycle.NotFound:
		b.answer(cq.ID, fmt.Sprintf("Заяўка #%d не знойдзена!", action.RequestID), true)
		b.markMissing(cq)
	case lifecycle.Invalid:
		if action.Kind == callback.KindClaim {
			b.answer(cq.ID, "Памылка: Менеджэр для прызначэння не знойдзен.", true)
		} else {
			b.answer(cq.ID, "Памылка: невядомы статус.", true)
		}
	case lifecycle.Conflict:
		b.answer(cq.ID, conflictText(action.RequestID, out.Request), true)
	case lifecycle.Success:
		b.applied(ctx, cq, action, out)
	}
}

func conflictText(id int64, req *models.Request) string {
	if req.IsCompleted() {
		return fmt.Sprintf("Заяўка #%d ўжо завершана.", id)
	}
	return fmt.Sprintf("Заяўка ўжо апрацоўваецца %s.", req.ClaimedByName)
}

// applied acknowledges a successful transition, tells the other managers and
// re-renders every copy of the request
func (b *Bot) applied(ctx context.Context, cq *tgbotapi.CallbackQuery, action callback.Action, out lifecycle.Outcome) {
	id := action.RequestID

	if !out.Changed {
		b.answer(cq.ID, fmt.Sprintf("Заяўка #%d ўжо завершана.", id), false)
		return
	}

	var toast, info string
	switch action.Kind {
	case callback.KindClaim:
		toast = fmt.Sprintf("✅ Заяўка прынята %s.", out.Target.NameBy)
		info = fmt.Sprintf("ℹ️ Заяўка #%d прынята %s (прызначана %s).",
			id, html.EscapeString(out.Actor.NameBy), html.EscapeString(out.Target.NameBy))
	case callback.KindComplete:
		toast = fmt.Sprintf("🏁 Заяўка #%d завершана.", id)
		info = fmt.Sprintf("ℹ️ Статус заяўкі #%d -> \"%s\" (%s).",
			id, models.StatusCompleted, html.EscapeString(out.Actor.NameBy))
	default:
		toast = fmt.Sprintf("Статус зменены на \"%s\".", out.Request.Status)
		info = fmt.Sprintf("ℹ️ Статус заяўкі #%d -> \"%s\" (%s).",
			id, html.EscapeString(string(out.Request.Status)), html.EscapeString(out.Actor.NameBy))
	}
	b.answer(cq.ID, toast, false)

	text, kb := render.Update(id, out.Request, b.location)
	report := b.notifier.EditAll(ctx, out.Request.Messages, text, kb)
	if failed := report.Failed(); len(failed) > 0 {
		b.logger.Warn("some copies were not updated", "request_id", id, "failed", len(failed))
	}

	b.notifier.Tell(ctx, b.otherManagers(out.Actor.ID), info)
}

func (b *Bot) otherManagers(except int64) []int64 {
	ids := make([]int64, 0, len(b.managers))
	for _, id := range b.managers.IDs() {
		if id != except {
			ids = append(ids, id)
		}
	}
	return ids
}

// markMissing edits the pressed message so the stale buttons go away
func (b *Bot) markMissing(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, cq.Message.Text+render.NotFoundSuffix)
	if _, err := b.api.Request(edit); err != nil {
		b.logger.LogError("failed to mark missing request", err,
			"chat_id", cq.Message.Chat.ID, "message_id", cq.Message.MessageID)
	}
}
