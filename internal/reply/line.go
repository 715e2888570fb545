// Package reply sends text replies through the LINE Messaging API.
package reply

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LINE replies with a single channel access token.
type LINE struct {
	client *messaging_api.MessagingApiAPI
}

// NewLINE creates a client for one channel. timeout bounds every API call.
// endpoint overrides the API base URL when non-empty.
func NewLINE(channelToken string, timeout time.Duration, endpoint string) (*LINE, error) {
	opts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}

	client, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &LINE{client: client}, nil
}

// Reply sends text for replyToken. Reply tokens are single use and expire
// quickly, so failures are not retried.
func (l *LINE) Reply(ctx context.Context, replyToken, text string) error {
	_, err := l.client.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
