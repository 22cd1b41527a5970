package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Status string

const (
	StatusNew           Status = "Новая"
	StatusClaimedPrefix Status = "Апрацоўваецца"
	StatusWillCome      Status = "✅ Прыедзе"
	StatusCanceled      Status = "❌ Адмена"
	StatusAlerted       Status = "🔔 Апавешчаны"
	StatusCompleted     Status = "🏁 Завершана"
)

// ClaimedStatus composes the status label for a request claimed by a manager
func ClaimedStatus(nameBy string) Status {
	return Status(string(StatusClaimedPrefix) + " " + nameBy)
}

// IsClaimed reports whether the status is a composed "claimed by" label
func (s Status) IsClaimed() bool {
	return strings.HasPrefix(string(s), string(StatusClaimedPrefix))
}

// UpdatableStatuses lists the statuses a manager can set directly, in keyboard order
func UpdatableStatuses() []Status {
	return []Status{StatusWillCome, StatusAlerted, StatusCanceled}
}

// IsUpdatable reports whether s is one of the directly settable statuses
func (s Status) IsUpdatable() bool {
	for _, u := range UpdatableStatuses() {
		if s == u {
			return true
		}
	}
	return false
}

// Manager is an authorized operator of the bot
type Manager struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`    // Display name, e.g. "Даша"
	NameBy string `yaml:"name_by"` // Name as used after "by", e.g. "Дашай"
}

// Initial returns the first letter of the manager's name
func (m Manager) Initial() string {
	r, _ := utf8.DecodeRuneInString(m.Name)
	if r == utf8.RuneError {
		return "?"
	}
	return string(r)
}

// Managers is the ordered allow-list of managers
type Managers []Manager

// Lookup finds a manager by Telegram user ID
func (ms Managers) Lookup(id int64) (Manager, bool) {
	for _, m := range ms {
		if m.ID == id {
			return m, true
		}
	}
	return Manager{}, false
}

func (ms Managers) IDs() []int64 {
	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	return ids
}

// MessageRef locates one copy of a request notification
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// TimeLayout is how the lifecycle writes timestamps. Stored values may also
// be zone-less ISO-8601 strings from older data files, so readers must not
// assume this layout.
const TimeLayout = time.RFC3339

// Request is an event-booking inquiry tracked from creation to completion.
// Timestamps are kept as ISO-8601 text; empty means unset.
type Request struct {
	FormTimestamp        string       `json:"form_timestamp"`
	ClientName           string       `json:"client_name"`
	ClientPhone          string       `json:"client_phone"`
	ClientMessenger      string       `json:"client_messenger"`
	RawEventDetails      string       `json:"raw_event_details"`
	Status               Status       `json:"status"`
	ClaimedByName        string       `json:"claimed_by_name,omitempty"`
	ClaimedByID          int64        `json:"claimed_by_id,omitempty"`
	ClaimedTimestamp     string       `json:"claimed_timestamp,omitempty"`
	LastUpdatedByName    string       `json:"last_updated_by_name,omitempty"`
	LastUpdatedTimestamp string       `json:"last_updated_timestamp,omitempty"`
	CreatedAt            string       `json:"created_at,omitempty"`
	Messages             []MessageRef `json:"messages"`
}

// IsClaimed reports whether a manager has taken ownership of the request
func (r *Request) IsClaimed() bool {
	return r.ClaimedByName != ""
}

func (r *Request) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	c := *r
	if r.Messages != nil {
		c.Messages = append([]MessageRef(nil), r.Messages...)
	}
	return &c
}

// ClientData is the inbound description of a new request
type ClientData struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Messenger string `json:"messenger"`
	Details   string `json:"details"`
}
