package notifier

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/booking-bot/internal/models"
)

func keyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Прыняць (Д)", "claim|1|1")),
	)
}

func TestBroadcastRecordsSuccessesAndFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := NewMockSender(ctrl)
	api.EXPECT().Send(gomock.Any()).DoAndReturn(func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		msg := c.(tgbotapi.MessageConfig)
		assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
		assert.Equal(t, "hello", msg.Text)
		assert.NotNil(t, msg.ReplyMarkup)

		switch msg.ChatID {
		case 1:
			return tgbotapi.Message{MessageID: 101, Chat: &tgbotapi.Chat{ID: 1}}, nil
		case 2:
			return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
		default:
			return tgbotapi.Message{MessageID: 303, Chat: &tgbotapi.Chat{ID: 3}}, nil
		}
	}).Times(3)

	n := New(api, 0, nil)
	report := n.Broadcast(context.Background(), []int64{1, 2, 3}, "hello", keyboard())

	require.Len(t, report.Deliveries, 3)
	assert.Equal(t, KindSend, report.Kind)
	assert.Equal(t, []models.MessageRef{{ChatID: 1, MessageID: 101}, {ChatID: 3, MessageID: 303}}, report.Sent())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(2), failed[0].ChatID)
}

func TestEditAllIsIndependentPerTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	refs := []models.MessageRef{{ChatID: 1, MessageID: 10}, {ChatID: 2, MessageID: 20}}

	api := NewMockSender(ctrl)
	api.EXPECT().Request(gomock.Any()).DoAndReturn(func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		edit := c.(tgbotapi.EditMessageTextConfig)
		assert.Equal(t, "updated", edit.Text)
		assert.Nil(t, edit.ReplyMarkup)
		if edit.ChatID == 1 {
			return nil, errors.New("Bad Request: message to edit not found")
		}
		return &tgbotapi.APIResponse{Ok: true}, nil
	}).Times(2)

	n := New(api, 0, nil)
	report := n.EditAll(context.Background(), refs, "updated", nil)

	assert.Equal(t, []models.MessageRef{{ChatID: 2, MessageID: 20}}, report.Sent())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, 10, report.Failed()[0].MessageID)
}

func TestEditAllKeepsKeyboard(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kb := keyboard()
	api := NewMockSender(ctrl)
	api.EXPECT().Request(gomock.Any()).DoAndReturn(func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		edit := c.(tgbotapi.EditMessageTextConfig)
		if assert.NotNil(t, edit.ReplyMarkup) {
			assert.Equal(t, kb, *edit.ReplyMarkup)
		}
		return &tgbotapi.APIResponse{Ok: true}, nil
	})

	New(api, 50, nil).EditAll(context.Background(), []models.MessageRef{{ChatID: 5, MessageID: 6}}, "x", &kb)
}

func TestTell(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := NewMockSender(ctrl)
	api.EXPECT().Send(gomock.Any()).DoAndReturn(func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		msg := c.(tgbotapi.MessageConfig)
		assert.Nil(t, msg.ReplyMarkup)
		return tgbotapi.Message{MessageID: 1}, nil
	}).Times(2)

	report := New(api, 0, nil).Tell(context.Background(), []int64{7, 8}, "ℹ️ info")
	assert.Len(t, report.Sent(), 2)
}

func TestCanceledContextSkipsCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := NewMockSender(ctrl) // no calls expected

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(api, 0, nil).Broadcast(ctx, []int64{1, 2}, "hello", keyboard())
	assert.Empty(t, report.Sent())
	assert.Len(t, report.Failed(), 2)
}

func TestEmptyTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	report := New(NewMockSender(ctrl), 0, nil).EditAll(context.Background(), nil, "x", nil)
	assert.Empty(t, report.Deliveries)
	assert.Empty(t, report.Sent())
}
