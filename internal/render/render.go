package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/eventdesk/booking-bot/internal/callback"
	"github.com/eventdesk/booking-bot/internal/models"
)

// TimestampLayout is the display format for every timestamp in a notification
const TimestampLayout = "02.01.2006 15:04:05"

// NotFoundSuffix is appended to a message whose request no longer exists
const NotFoundSuffix = "\n\n⚠️ Заяўка не знойдзена."

var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Options controls how the status line is attributed
type Options struct {
	// Status overrides the stored status when set.
	Status models.Status
	// ProcessedBy is the manager who just acted; empty for a fresh request.
	ProcessedBy string
	// Location for displayed timestamps; time.Local when nil.
	Location *time.Location
}

// Timestamp formats an ISO-8601 string for display, returning s unchanged
// when it cannot be parsed
func Timestamp(s string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc).Format(TimestampLayout)
		}
	}
	return s
}

func statusLine(status models.Status, processedBy string) string {
	if processedBy == "" || status == models.StatusNew || status.IsClaimed() {
		return string(status)
	}
	return fmt.Sprintf("%s (%s)", status, processedBy)
}

func eventLines(details string) string {
	var lines []string
	for _, item := range strings.Split(details, ",") {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "● "+html.EscapeString(item))
		}
	}
	if len(lines) == 0 {
		return "N/A"
	}
	return strings.Join(lines, "\n")
}

// Text renders a request as an HTML notification body
func Text(id int64, req *models.Request, opts Options) string {
	status := req.Status
	if opts.Status != "" {
		status = opts.Status
	}

	messenger := req.ClientMessenger
	if messenger == "" {
		messenger = "—"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Заяўка #%d</b>\n", id))
	sb.WriteString(fmt.Sprintf("👤 %s\n", html.EscapeString(req.ClientName)))
	sb.WriteString(fmt.Sprintf("📞 %s\n", html.EscapeString(req.ClientPhone)))
	sb.WriteString(fmt.Sprintf("📲 Tg/Viber: %s\n\n", html.EscapeString(messenger)))
	sb.WriteString("Мерапрыемства:\n")
	sb.WriteString(eventLines(req.RawEventDetails))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("⏰ Заяўка ад: %s\n", html.EscapeString(Timestamp(req.FormTimestamp, opts.Location))))
	sb.WriteString(fmt.Sprintf("<b>Статус: %s</b>\n", html.EscapeString(statusLine(status, opts.ProcessedBy))))

	if req.ClaimedByName != "" && req.ClaimedTimestamp != "" {
		sb.WriteString(fmt.Sprintf("🔑 Замацавана за: %s (%s)\n",
			html.EscapeString(req.ClaimedByName), html.EscapeString(Timestamp(req.ClaimedTimestamp, opts.Location))))
	}

	// The footer repeats what the status line already says when the same
	// manager is shown acting on the stored status.
	redundant := opts.ProcessedBy == req.LastUpdatedByName && status == req.Status
	if req.LastUpdatedByName != "" && req.LastUpdatedTimestamp != "" && !redundant {
		sb.WriteString(fmt.Sprintf("📝 Апошняе абнаўленне: %s (%s)\n",
			html.EscapeString(req.LastUpdatedByName), html.EscapeString(Timestamp(req.LastUpdatedTimestamp, opts.Location))))
	}

	return sb.String()
}

// ClaimKeyboard offers one claim button per manager, two per row
func ClaimKeyboard(id int64, managers models.Managers) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(managers); i += 2 {
		end := i + 2
		if end > len(managers) {
			end = len(managers)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, m := range managers[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Прыняць (%s)", m.Initial()),
				callback.EncodeClaim(id, m.ID),
			))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// StatusKeyboard offers the status updates and completion
func StatusKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	button := func(s models.Status) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(string(s), callback.EncodeUpdateStatus(id, s))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(models.StatusWillCome), button(models.StatusAlerted)),
		tgbotapi.NewInlineKeyboardRow(button(models.StatusCanceled)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(models.StatusCompleted), callback.EncodeComplete(id)),
		),
	)
}

// Keyboard returns the controls for a request after its first transition;
// nil once the request is completed
func Keyboard(id int64, req *models.Request) *tgbotapi.InlineKeyboardMarkup {
	if req.IsCompleted() {
		return nil
	}
	kb := StatusKeyboard(id)
	return &kb
}

// Initial renders a freshly created request with its claim controls
func Initial(id int64, req *models.Request, managers models.Managers, loc *time.Location) (string, tgbotapi.InlineKeyboardMarkup) {
	text := Text(id, req, Options{Status: models.StatusNew, Location: loc})
	return text, ClaimKeyboard(id, managers)
}

// Update renders a request after a manager's transition
func Update(id int64, req *models.Request, loc *time.Location) (string, *tgbotapi.InlineKeyboardMarkup) {
	text := Text(id, req, Options{Status: req.Status, ProcessedBy: req.LastUpdatedByName, Location: loc})
	return text, Keyboard(id, req)
}
