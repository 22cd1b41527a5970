package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/eventdesk/booking-bot/internal/db"
	"github.com/eventdesk/booking-bot/internal/errreport"
	"github.com/eventdesk/booking-bot/internal/models"
)

type Config struct {
	BotToken   string
	FormSecret string
	Managers   models.Managers

	Store db.Config

	// WebhookHost is the public base URL. Empty means long polling.
	WebhookHost    string
	Port           int
	FormSubmitPath string

	SendRate int // outbound Telegram calls per second
	Location *time.Location

	Sentry errreport.Config

	LogFormat string
	Verbose   bool
}

// WebhookPath is the route Telegram posts updates to
func (c *Config) WebhookPath() string {
	return "/webhook/" + c.BotToken
}

// WebhookURL is the full URL registered with Telegram; empty in polling mode
func (c *Config) WebhookURL() string {
	if c.WebhookHost == "" {
		return ""
	}
	return strings.TrimRight(c.WebhookHost, "/") + c.WebhookPath()
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

type managersFile struct {
	Managers []models.Manager `yaml:"managers"`
}

// Load reads configuration from command-line flags, an optional .env file
// and the environment. Flags win over the environment.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("booking-bot", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "Path to a .env file (ignored when missing)")
	logFormat := flags.String("log-format", "text", "Log format (text or json)")
	verbose := flags.BoolP("verbose", "v", false, "Enable debug logging")
	port := flags.Int("port", 8080, "HTTP listen port")
	storeDriver := flags.String("store", db.DriverFile, "Store driver (file, sqlite, redis, memory)")
	dataFile := flags.String("data-file", "bot_data.json", "Path to the JSON data file")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		FormSecret:     os.Getenv("FORM_SECRET"),
		WebhookHost:    firstNonEmpty(os.Getenv("WEBHOOK_HOST"), os.Getenv("RAILWAY_STATIC_URL")),
		FormSubmitPath: GetEnv("FORM_SUBMIT_PATH", "/formsubmit"),
		LogFormat:      GetEnv("LOG_FORMAT", *logFormat),
		Store: db.Config{
			Driver:        GetEnv("STORE_DRIVER", *storeDriver),
			FilePath:      GetEnv("DATA_FILE_PATH", *dataFile),
			SQLitePath:    GetEnv("SQLITE_PATH", "./data/booking.db"),
			RedisAddr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
		},
		Sentry: errreport.Config{
			DSN:         os.Getenv("SENTRY_DSN"),
			Environment: GetEnv("SENTRY_ENVIRONMENT", "production"),
		},
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", *port); err != nil {
		return nil, err
	}
	if cfg.SendRate, err = getEnvInt("SEND_RATE", 25); err != nil {
		return nil, err
	}
	if cfg.Store.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Verbose, err = getEnvBool("VERBOSE", *verbose); err != nil {
		return nil, err
	}

	// Explicit flags override the environment.
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if flags.Changed("verbose") {
		cfg.Verbose = *verbose
	}
	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("store") {
		cfg.Store.Driver = *storeDriver
	}
	if flags.Changed("data-file") {
		cfg.Store.FilePath = *dataFile
	}

	cfg.Location = time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		if cfg.Location, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
	}

	if path := os.Getenv("MANAGERS_FILE"); path != "" {
		if cfg.Managers, err = LoadManagersFile(path); err != nil {
			return nil, err
		}
	} else if list := os.Getenv("MANAGERS"); list != "" {
		if cfg.Managers, err = ParseManagers(list); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate reports the first missing or invalid setting
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.FormSecret == "" {
		return fmt.Errorf("FORM_SECRET is required")
	}
	if len(c.Managers) == 0 {
		return fmt.Errorf("at least one manager is required (MANAGERS or MANAGERS_FILE)")
	}
	seen := make(map[int64]bool)
	for _, m := range c.Managers {
		if seen[m.ID] {
			return fmt.Errorf("duplicate manager id %d", m.ID)
		}
		seen[m.ID] = true
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !strings.HasPrefix(c.FormSubmitPath, "/") {
		return fmt.Errorf("FORM_SUBMIT_PATH must start with /")
	}
	switch c.Store.Driver {
	case db.DriverFile, db.DriverSQLite, db.DriverRedis, db.DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}
	return nil
}

// ParseManagers parses "id:Name:NameBy,id:Name:NameBy". NameBy defaults to Name.
func ParseManagers(list string) (models.Managers, error) {
	var managers models.Managers
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid manager entry %q, want id:Name[:NameBy]", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid manager id in %q: %w", entry, err)
		}
		m := models.Manager{ID: id, Name: strings.TrimSpace(parts[1])}
		m.NameBy = m.Name
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			m.NameBy = strings.TrimSpace(parts[2])
		}
		if m.Name == "" {
			return nil, fmt.Errorf("manager %d has no name", id)
		}
		managers = append(managers, m)
	}
	return managers, nil
}

// LoadManagersFile reads the manager allow-list from a YAML file
func LoadManagersFile(path string) (models.Managers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read managers file: %w", err)
	}

	var f managersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse managers file: %w", err)
	}

	managers := make(models.Managers, 0, len(f.Managers))
	for _, m := range f.Managers {
		if m.ID == 0 || m.Name == "" {
			return nil, fmt.Errorf("managers file: every manager needs id and name")
		}
		if m.NameBy == "" {
			m.NameBy = m.Name
		}
		managers = append(managers, m)
	}
	return managers, nil
}

func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
