package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/eventdesk/booking-bot/internal/errreport"
	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/metrics"
	"github.com/eventdesk/booking-bot/internal/models"
)

const secretHeader = "X-Form-Secret"

// Creator stores a new request and notifies the managers
type Creator interface {
	CreateAndNotify(ctx context.Context, data models.ClientData, source string) (int64, error)
}

// UpdateHandler consumes Telegram updates delivered by webhook
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type Config struct {
	FormSecret     string
	FormSubmitPath string
	// WebhookPath is empty in polling mode.
	WebhookPath string
}

type Server struct {
	app     *fiber.App
	cfg     Config
	creator Creator
	updates UpdateHandler
	logger  *logging.Logger
}

// formPayload uses pointers so absent fields can be told apart from empty ones
type formPayload struct {
	Timestamp *string `json:"timestamp"`
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Messenger string  `json:"messenger"`
	Details   *string `json:"details"`
}

func New(cfg Config, creator Creator, updates UpdateHandler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	app := fiber.New(fiber.Config{
		AppName:               "booking-bot",
		CaseSensitive:         true,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	app.Use(recover.New())

	s := &Server{app: app, cfg: cfg, creator: creator, updates: updates, logger: logger}

	app.Get("/health", s.health)
	app.Get("/metrics", s.metrics)
	app.Post(cfg.FormSubmitPath, s.formSubmit)
	if cfg.WebhookPath != "" && updates != nil {
		// Bot tokens contain ':', which fiber would otherwise read as a parameter.
		app.Post(strings.ReplaceAll(cfg.WebhookPath, ":", "\\:"), s.telegramUpdate)
	}
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("starting web server", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) metrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.WritePrometheus(c.Response().BodyWriter())
	return nil
}

func (s *Server) validSecret(received string) bool {
	if received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(s.cfg.FormSecret)) == 1
}

func (s *Server) formSubmit(c *fiber.Ctx) error {
	if !s.validSecret(c.Get(secretHeader)) {
		s.logger.Warn("form submission rejected: invalid or missing secret", "ip", c.IP())
		metrics.RecordFormSubmission("forbidden")
		return c.Status(fiber.StatusForbidden).SendString("Forbidden: Invalid Secret")
	}

	var payload formPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		s.logger.Warn("form submission rejected: invalid JSON", "error", err)
		metrics.RecordFormSubmission("invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid JSON payload",
		})
	}

	if payload.Timestamp == nil || payload.Name == nil || payload.Phone == nil || payload.Details == nil {
		s.logger.Warn("form submission rejected: missing fields")
		metrics.RecordFormSubmission("invalid")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Missing required fields",
		})
	}

	id, err := s.creator.CreateAndNotify(c.UserContext(), models.ClientData{
		Timestamp: *payload.Timestamp,
		Name:      *payload.Name,
		Phone:     *payload.Phone,
		Messenger: payload.Messenger,
		Details:   *payload.Details,
	}, "form")
	if err != nil {
		s.logger.LogError("form submission failed", err)
		errreport.Capture(err, map[string]string{"component": "server"})
		metrics.RecordFormSubmission("error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "Internal server error",
		})
	}

	metrics.RecordFormSubmission("ok")
	return c.JSON(fiber.Map{"status": "ok", "request_id": id})
}

func (s *Server) telegramUpdate(c *fiber.Ctx) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		s.logger.Warn("invalid telegram update", "error", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	s.updates.HandleUpdate(c.UserContext(), update)
	return c.SendStatus(fiber.StatusOK)
}
