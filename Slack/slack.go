package Slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type boardAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddPinContext(ctx context.Context, channel string, item slack.ItemRef) error
	RemovePinContext(ctx context.Context, channel string, item slack.ItemRef) error
	ListPinsContext(ctx context.Context, channel string) ([]slack.Item, *slack.Paging, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
}

// Board keeps one pinned open-work message in a channel. Each publish replaces
// the previous bot posts unless the content is unchanged.
type Board struct {
	api     boardAPI
	channel string
	log     *zap.Logger
	// pause between deletions to stay under Slack's tier limits
	pause time.Duration
}

func NewBoard(token, channel string, log *zap.Logger) *Board {
	return &Board{
		api:     slack.New(token),
		channel: channel,
		log:     log,
		pause:   200 * time.Millisecond,
	}
}

// Publish posts text as the new pinned board.
func (b *Board) Publish(ctx context.Context, text string) error {
	history, err := b.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: b.channel,
		Limit:     100,
	})
	if err != nil {
		b.log.Warn("could not read channel history", zap.String("channel", b.channel), zap.Error(err))
	} else {
		var botPosts []slack.Message
		for _, msg := range history.Messages {
			if msg.BotID != "" {
				botPosts = append(botPosts, msg)
			}
		}
		// History is newest first.
		if len(botPosts) > 0 && sameBoard(botPosts[0].Text, text) {
			b.log.Debug("board unchanged, skipping post", zap.String("channel", b.channel))
			return nil
		}
		deleted := 0
		for _, msg := range botPosts {
			if _, _, err := b.api.DeleteMessageContext(ctx, b.channel, msg.Timestamp); err != nil {
				b.log.Warn("could not delete old board", zap.String("ts", msg.Timestamp), zap.Error(err))
				continue
			}
			deleted++
			if b.pause > 0 {
				time.Sleep(b.pause)
			}
		}
		if deleted > 0 {
			b.log.Info("removed old boards", zap.Int("count", deleted))
		}
	}

	pins, _, err := b.api.ListPinsContext(ctx, b.channel)
	if err != nil {
		b.log.Warn("could not list pins", zap.Error(err))
	}
	for _, item := range pins {
		if item.Message == nil {
			continue
		}
		ref := slack.NewRefToMessage(b.channel, item.Message.Timestamp)
		if err := b.api.RemovePinContext(ctx, b.channel, ref); err != nil {
			b.log.Warn("could not unpin", zap.String("ts", item.Message.Timestamp), zap.Error(err))
		}
	}

	_, ts, err := b.api.PostMessageContext(ctx, b.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post board to %s: %w", b.channel, err)
	}
	if err := b.api.AddPinContext(ctx, b.channel, slack.NewRefToMessage(b.channel, ts)); err != nil {
		b.log.Warn("board posted but not pinned", zap.String("ts", ts), zap.Error(err))
	}
	b.log.Info("board published", zap.String("channel", b.channel), zap.String("ts", ts))
	return nil
}

// sameBoard compares two renderings while ignoring their "Last Updated" lines.
func sameBoard(previous, next string) bool {
	return strings.TrimSpace(withoutTimestamps(previous)) == strings.TrimSpace(withoutTimestamps(next))
}

func withoutTimestamps(message string) string {
	lines := strings.Split(message, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.Contains(line, "Last Updated:") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
