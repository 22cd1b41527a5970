// Package lifecycle implements the request state machine. Transitions are
// attributed to a manager, timestamped, and persisted through a db.Store.
// Rejections are reported as Outcome kinds rather than errors; an error is
// returned only when the store fails.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventdesk/booking-bot/internal/db"
	"github.com/eventdesk/booking-bot/internal/logging"
	"github.com/eventdesk/booking-bot/internal/models"
)

type Kind int

const (
	Success Kind = iota
	NotFound
	Conflict
	Unauthorized
	Invalid
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Unauthorized:
		return "unauthorized"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of a transition attempt
type Outcome struct {
	Kind    Kind
	Request *models.Request // current record; nil for NotFound and Unauthorized
	Changed bool            // false when Success left the record untouched
	Actor   models.Manager
	Target  models.Manager // claim only
}

type Machine struct {
	store    db.Store
	managers models.Managers
	now      func() time.Time
	logger   *logging.Logger

	mu sync.Mutex
}

type Option func(*Machine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithLogger(logger *logging.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

func New(store db.Store, managers models.Managers, opts ...Option) *Machine {
	m := &Machine{
		store:    store,
		managers: managers,
		now:      time.Now,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allowed is the transition table. Every move is permitted except leaving
// the completed state; completing twice is a no-op.
func Allowed(from, to models.Status) bool {
	if from == models.StatusCompleted {
		return to == models.StatusCompleted
	}
	return true
}

// inOrder reports whether a transition follows the expected
// new -> claimed -> {will-come|alerted|canceled} -> completed path
func inOrder(from, to models.Status) bool {
	switch {
	case to.IsClaimed():
		return from == models.StatusNew
	case to.IsUpdatable():
		return from.IsClaimed() || from.IsUpdatable()
	default:
		return true
	}
}

// Create assigns the next ID and stores a new request in status new
func (m *Machine) Create(ctx context.Context, data models.ClientData) (int64, *models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.NextID(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to allocate request id: %w", err)
	}

	now := m.now()
	req := &models.Request{
		FormTimestamp:   data.Timestamp,
		ClientName:      data.Name,
		ClientPhone:     data.Phone,
		ClientMessenger: data.Messenger,
		RawEventDetails: data.Details,
		Status:          models.StatusNew,
		CreatedAt:       now.Format(models.TimeLayout),
		Messages:        []models.MessageRef{},
	}
	if req.FormTimestamp == "" {
		req.FormTimestamp = now.Format(models.TimeLayout)
	}
	if req.ClientName == "" {
		req.ClientName = fmt.Sprintf("N/A %d", id)
	}
	if req.ClientPhone == "" {
		req.ClientPhone = "N/A"
	}

	if err := m.store.Put(ctx, id, req); err != nil {
		return 0, nil, fmt.Errorf("failed to save request %d: %w", id, err)
	}
	return id, req, nil
}

// AttachMessages records where the request notification was delivered and
// returns the record as stored. Managers may have acted on a copy before
// every send finished, so the status need not be new any more.
func (m *Machine) AttachMessages(ctx context.Context, id int64, refs []models.MessageRef) (*models.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("request %d not found", id)
	}

	req.Messages = append([]models.MessageRef{}, refs...)
	if err := m.store.Put(ctx, id, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get returns the current record
func (m *Machine) Get(ctx context.Context, id int64) (*models.Request, bool, error) {
	return m.store.Get(ctx, id)
}

// load resolves the actor and record shared by every transition. Caller holds mu.
func (m *Machine) load(ctx context.Context, actorID, id int64) (Outcome, bool, error) {
	actor, ok := m.managers.Lookup(actorID)
	if !ok {
		return Outcome{Kind: Unauthorized}, false, nil
	}

	req, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("failed to load request %d: %w", id, err)
	}
	if !ok {
		return Outcome{Kind: NotFound, Actor: actor}, false, nil
	}
	return Outcome{Kind: Success, Request: req, Actor: actor}, true, nil
}

func (m *Machine) stamp(req *models.Request, actor models.Manager, now time.Time) {
	req.LastUpdatedByName = actor.Name
	req.LastUpdatedTimestamp = now.Format(models.TimeLayout)
}

// Claim assigns the request to targetID on behalf of actorID
func (m *Machine) Claim(ctx context.Context, actorID, id, targetID int64) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok, err := m.load(ctx, actorID, id)
	if !ok || err != nil {
		return out, err
	}

	target, known := m.managers.Lookup(targetID)
	if !known {
		out.Kind = Invalid
		return out, nil
	}
	out.Target = target

	req := out.Request
	to := models.ClaimedStatus(target.NameBy)
	if req.IsClaimed() || !Allowed(req.Status, to) || req.IsCompleted() {
		out.Kind = Conflict
		return out, nil
	}
	if !inOrder(req.Status, to) {
		m.logger.Debug("claim out of order", "request_id", id, "from", req.Status)
	}

	now := m.now()
	req.ClaimedByName = target.Name
	req.ClaimedByID = target.ID
	req.ClaimedTimestamp = now.Format(models.TimeLayout)
	req.Status = to
	m.stamp(req, out.Actor, now)

	if err := m.store.Put(ctx, id, req); err != nil {
		return Outcome{}, fmt.Errorf("failed to save request %d: %w", id, err)
	}
	out.Changed = true
	return out, nil
}

// SetStatus overwrites the status with one of the directly settable labels
func (m *Machine) SetStatus(ctx context.Context, actorID, id int64, status models.Status) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok, err := m.load(ctx, actorID, id)
	if !ok || err != nil {
		return out, err
	}

	if !status.IsUpdatable() {
		out.Kind = Invalid
		return out, nil
	}

	req := out.Request
	if !Allowed(req.Status, status) {
		out.Kind = Conflict
		return out, nil
	}
	if !inOrder(req.Status, status) {
		m.logger.Debug("status update out of order", "request_id", id, "from", req.Status, "to", status)
	}

	now := m.now()
	req.Status = status
	m.stamp(req, out.Actor, now)

	if err := m.store.Put(ctx, id, req); err != nil {
		return Outcome{}, fmt.Errorf("failed to save request %d: %w", id, err)
	}
	out.Changed = true
	return out, nil
}

// Complete moves the request to the terminal state
func (m *Machine) Complete(ctx context.Context, actorID, id int64) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, ok, err := m.load(ctx, actorID, id)
	if !ok || err != nil {
		return out, err
	}

	req := out.Request
	if req.IsCompleted() {
		return out, nil
	}

	now := m.now()
	req.Status = models.StatusCompleted
	m.stamp(req, out.Actor, now)

	if err := m.store.Put(ctx, id, req); err != nil {
		return Outcome{}, fmt.Errorf("failed to save request %d: %w", id, err)
	}
	out.Changed = true
	return out, nil
}
