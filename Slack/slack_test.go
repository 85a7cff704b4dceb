package Slack

import (
	"context"
	"errors"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSlack struct {
	history  []slack.Message
	pins     []slack.Item
	posted   []string
	pinned   []string
	unpinned []string
	deleted  []string
	postErr  error
}

func (f *fakeSlack) PostMessageContext(_ context.Context, _ string, _ ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	ts := "ts-new"
	f.posted = append(f.posted, ts)
	return "C1", ts, nil
}

func (f *fakeSlack) AddPinContext(_ context.Context, _ string, item slack.ItemRef) error {
	f.pinned = append(f.pinned, item.Timestamp)
	return nil
}

func (f *fakeSlack) RemovePinContext(_ context.Context, _ string, item slack.ItemRef) error {
	f.unpinned = append(f.unpinned, item.Timestamp)
	return nil
}

func (f *fakeSlack) ListPinsContext(context.Context, string) ([]slack.Item, *slack.Paging, error) {
	return f.pins, nil, nil
}

func (f *fakeSlack) GetConversationHistoryContext(context.Context, *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	return &slack.GetConversationHistoryResponse{Messages: f.history}, nil
}

func (f *fakeSlack) DeleteMessageContext(_ context.Context, _ string, ts string) (string, string, error) {
	f.deleted = append(f.deleted, ts)
	return "C1", ts, nil
}

func botMessage(ts, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, Text: text, BotID: "B1"}}
}

func newTestBoard(api *fakeSlack) *Board {
	return &Board{api: api, channel: "C1", log: zap.NewNop()}
}

func TestPublish_ReplacesOldBoards(t *testing.T) {
	api := &fakeSlack{
		history: []slack.Message{
			botMessage("ts-2", "*Arena open work*\nLast Updated: 2024-01-30\n\nAll clear.\n"),
			{Msg: slack.Msg{Timestamp: "ts-h", Text: "human chatter"}},
			botMessage("ts-1", "older board"),
		},
		pins: []slack.Item{{Type: "message", Message: &slack.Message{Msg: slack.Msg{Timestamp: "ts-2"}}}},
	}

	err := newTestBoard(api).Publish(context.Background(), "*Arena open work*\nLast Updated: 2024-01-31\n\nOverdue tasks (1)\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"ts-2", "ts-1"}, api.deleted)
	assert.Equal(t, []string{"ts-2"}, api.unpinned)
	assert.Equal(t, []string{"ts-new"}, api.posted)
	assert.Equal(t, []string{"ts-new"}, api.pinned)
}

func TestPublish_SkipsUnchangedBoard(t *testing.T) {
	api := &fakeSlack{
		history: []slack.Message{botMessage("ts-2", "*Arena open work*\nLast Updated: 2024-01-30\n\nAll clear.\n")},
	}

	err := newTestBoard(api).Publish(context.Background(), "*Arena open work*\nLast Updated: 2024-01-31\n\nAll clear.\n")
	require.NoError(t, err)
	assert.Empty(t, api.posted)
	assert.Empty(t, api.deleted)
}

func TestPublish_PostFailure(t *testing.T) {
	api := &fakeSlack{postErr: errors.New("channel_not_found")}
	err := newTestBoard(api).Publish(context.Background(), "board")
	assert.ErrorContains(t, err, "channel_not_found")
	assert.Empty(t, api.pinned)
}
