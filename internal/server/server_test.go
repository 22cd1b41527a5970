package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/booking-bot/internal/bot"
	"github.com/eventdesk/booking-bot/internal/bot/bottest"
	"github.com/eventdesk/booking-bot/internal/callback"
	"github.com/eventdesk/booking-bot/internal/db"
	"github.com/eventdesk/booking-bot/internal/lifecycle"
	"github.com/eventdesk/booking-bot/internal/models"
	"github.com/eventdesk/booking-bot/internal/notifier"
)

const (
	secret      = "s3cret"
	webhookPath = "/webhook/123:abc"

	dasha int64 = 675120396
	yulia int64 = 8153757571
)

var testManagers = models.Managers{
	{ID: dasha, Name: "Даша", NameBy: "Дашай"},
	{ID: yulia, Name: "Юля", NameBy: "Юляй"},
}

const validBody = `{"timestamp":"2024-01-01T10:00:00","name":"A","phone":"123","details":"wedding, 100 guests"}`

type harness struct {
	srv   *Server
	api   *bottest.FakeAPI
	store *db.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := bottest.NewFakeAPI()
	store := db.NewMemory()
	b := bot.New(api, lifecycle.New(store, testManagers), notifier.New(api, 0, nil), bot.Config{
		Managers: testManagers,
		Location: time.UTC,
	}, nil)

	srv := New(Config{
		FormSecret:     secret,
		FormSubmitPath: "/formsubmit",
		WebhookPath:    webhookPath,
	}, b, b, nil)
	return &harness{srv: srv, api: api, store: store}
}

func (h *harness) post(t *testing.T, path, secretValue, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secretValue != "" {
		req.Header.Set(secretHeader, secretValue)
	}

	resp, err := h.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// nextID reports the id the store hands out next. It advances the counter.
func (h *harness) nextID(t *testing.T) int64 {
	t.Helper()
	id, err := h.store.NextID(context.Background())
	require.NoError(t, err)
	return id
}

func TestFormSubmitCreatesRequests(t *testing.T) {
	h := newHarness(t)

	status, body := h.post(t, "/formsubmit", secret, validBody)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","request_id":1}`, body)

	req, ok, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusNew, req.Status)
	assert.Equal(t, "A", req.ClientName)
	assert.Equal(t, "", req.ClientMessenger)
	assert.Len(t, req.Messages, 2)

	status, body = h.post(t, "/formsubmit", secret, validBody)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","request_id":2}`, body)
}

func TestFormSubmitRejectsBadSecret(t *testing.T) {
	for name, value := range map[string]string{"missing": "", "wrong": "nope", "prefix": "s3cre"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)

			status, body := h.post(t, "/formsubmit", value, validBody)
			assert.Equal(t, http.StatusForbidden, status)
			assert.Equal(t, "Forbidden: Invalid Secret", body)
			assert.Equal(t, int64(1), h.nextID(t))
			assert.Empty(t, h.api.SentTo(dasha))
		})
	}
}

func TestFormSubmitValidation(t *testing.T) {
	tests := map[string]struct {
		body    string
		message string
	}{
		"not json":        {`timestamp=1`, "Invalid JSON payload"},
		"wrong type":      {`{"timestamp":1,"name":"A","phone":"1","details":"x"}`, "Invalid JSON payload"},
		"missing details": {`{"timestamp":"t","name":"A","phone":"1"}`, "Missing required fields"},
		"missing name":    {`{"timestamp":"t","phone":"1","details":"x"}`, "Missing required fields"},
		"empty object":    {`{}`, "Missing required fields"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)

			status, body := h.post(t, "/formsubmit", secret, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)

			var resp map[string]string
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.Equal(t, "error", resp["status"])
			assert.Equal(t, tt.message, resp["message"])
			assert.Equal(t, int64(1), h.nextID(t))
		})
	}
}

func TestFormSubmitEmptyFieldsAreAccepted(t *testing.T) {
	h := newHarness(t)

	status, _ := h.post(t, "/formsubmit", secret, `{"timestamp":"","name":"","phone":"","details":""}`)
	require.Equal(t, http.StatusOK, status)

	req, ok, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "N/A 1", req.ClientName)
	assert.Equal(t, "N/A", req.ClientPhone)
}

type failingCreator struct{}

func (failingCreator) CreateAndNotify(context.Context, models.ClientData, string) (int64, error) {
	return 0, errors.New("disk full")
}

func TestFormSubmitInternalError(t *testing.T) {
	srv := New(Config{FormSecret: secret, FormSubmitPath: "/formsubmit"}, failingCreator{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/formsubmit", strings.NewReader(validBody))
	req.Header.Set(secretHeader, secret)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	data, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, string(data))
}

func update(t *testing.T, u tgbotapi.Update) string {
	t.Helper()
	data, err := json.Marshal(u)
	require.NoError(t, err)
	return string(data)
}

func pressUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: from},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 101,
				Chat:      &tgbotapi.Chat{ID: from},
			},
		},
	}
}

func TestWebhookClaimFlow(t *testing.T) {
	h := newHarness(t)

	status, _ := h.post(t, "/formsubmit", secret, validBody)
	require.Equal(t, http.StatusOK, status)

	status, _ = h.post(t, webhookPath, "", update(t, pressUpdate(dasha, callback.EncodeClaim(1, dasha))))
	require.Equal(t, http.StatusOK, status)

	req, ok, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ClaimedStatus("Дашай"), req.Status)
	assert.Len(t, h.api.Edits(), 2)

	status, _ = h.post(t, webhookPath, "", update(t, pressUpdate(yulia, callback.EncodeClaim(1, yulia))))
	require.Equal(t, http.StatusOK, status)

	answer, ok := h.api.LastAnswer()
	require.True(t, ok)
	assert.True(t, answer.ShowAlert)
	assert.Equal(t, "Заяўка ўжо апрацоўваецца Даша.", answer.Text)

	req, _, err = h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, dasha, req.ClaimedByID)
}

func TestWebhookRejectsGarbage(t *testing.T) {
	h := newHarness(t)
	status, _ := h.post(t, webhookPath, "", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhookRouteAbsentInPollingMode(t *testing.T) {
	srv := New(Config{FormSecret: secret, FormSubmitPath: "/formsubmit"}, failingCreator{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader("{}"))
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.post(t, "/formsubmit", secret, validBody)

	resp, err := h.srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = h.srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `booking_form_submissions_total{result="ok"}`)
	assert.Contains(t, string(data), `booking_requests_created_total{source="form"}`)
}
