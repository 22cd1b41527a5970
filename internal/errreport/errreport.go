// Package errreport forwards unexpected failures to Sentry (or a
// Sentry-compatible collector). Without a DSN every call is a no-op.
package errreport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Init configures the Sentry client. An empty DSN disables reporting.
func Init(cfg Config) error {
	if cfg.DSN == "" {
		enabled.Store(false)
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags["service"] = "booking-bot"
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	enabled.Store(true)
	return nil
}

func Enabled() bool {
	return enabled.Load()
}

// Capture reports err with the given tags
func Capture(err error, tags map[string]string) {
	if !Enabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Recovered reports a value obtained from recover()
func Recovered(v any, tags map[string]string) {
	if !Enabled() || v == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CurrentHub().Recover(v)
	})
}

// Flush waits for buffered events to be sent
func Flush(timeout time.Duration) {
	if Enabled() {
		sentry.Flush(timeout)
	}
}
