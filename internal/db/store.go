package db

import (
	"context"
	"fmt"

	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/models"
)

// Store persists requests and the request ID counter
type Store interface {
	// Get returns the request with the given ID. ok is false when absent.
	Get(ctx context.Context, id int64) (req *models.Request, ok bool, err error)
	// Put stores req under id, replacing any previous record.
	Put(ctx context.Context, id int64, req *models.Request) error
	// NextID increments the counter and returns the new value.
	NextID(ctx context.Context) (int64, error)
	Close() error
}

// StatusCounter is implemented by stores that can summarize requests by status
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	Driver        string
	FilePath      string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverFile:
		return OpenFile(cfg.FilePath, logger)
	case DriverSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
