// Package bottest provides an in-memory stand-in for the Telegram Bot API.
package bottest

import (
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrBlocked is returned for chats listed in FakeAPI.Fail
var ErrBlocked = errors.New("Forbidden: bot was blocked by the user")

// FakeAPI records every outbound call. It is safe for concurrent use.
type FakeAPI struct {
	mu      sync.Mutex
	nextID  int
	fail    map[int64]bool
	sent    []tgbotapi.MessageConfig
	edits   []tgbotapi.EditMessageTextConfig
	answers []tgbotapi.CallbackConfig
	other   []tgbotapi.Chattable
	onSend  func(tgbotapi.MessageConfig)

	Updates chan tgbotapi.Update
	stopped bool
}

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		nextID:  100,
		fail:    make(map[int64]bool),
		Updates: make(chan tgbotapi.Update, 16),
	}
}

// Fail makes every call targeting chatID return ErrBlocked
func (f *FakeAPI) Fail(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[chatID] = true
}

// OnSend registers fn to run after each delivered message, outside the lock,
// so it may call back into the bot.
func (f *FakeAPI) OnSend(fn func(tgbotapi.MessageConfig)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSend = fn
}

func (f *FakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		f.other = append(f.other, c)
		f.mu.Unlock()
		return tgbotapi.Message{}, nil
	}
	if f.fail[msg.ChatID] {
		f.mu.Unlock()
		return tgbotapi.Message{}, ErrBlocked
	}

	f.nextID++
	f.sent = append(f.sent, msg)
	sent := tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: msg.ChatID}, Text: msg.Text}
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return sent, nil
}

func (f *FakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch v := c.(type) {
	case tgbotapi.EditMessageTextConfig:
		if f.fail[v.ChatID] {
			return nil, ErrBlocked
		}
		f.edits = append(f.edits, v)
	case tgbotapi.CallbackConfig:
		f.answers = append(f.answers, v)
	default:
		f.other = append(f.other, c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *FakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.Updates
}

func (f *FakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *FakeAPI) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// SentTo returns the messages delivered to chatID, oldest first
func (f *FakeAPI) SentTo(chatID int64) []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakeAPI) Edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.EditMessageTextConfig(nil), f.edits...)
}

func (f *FakeAPI) Answers() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.CallbackConfig(nil), f.answers...)
}

// LastAnswer returns the most recent callback answer
func (f *FakeAPI) LastAnswer() (tgbotapi.CallbackConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return tgbotapi.CallbackConfig{}, false
	}
	return f.answers[len(f.answers)-1], true
}

// Other returns calls that were neither messages, edits nor callback answers
func (f *FakeAPI) Other() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.other...)
}

func (f *FakeAPI) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.edits = nil
	f.answers = nil
	f.other = nil
}
