package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLINEReply(t *testing.T) {
	var got struct {
		ReplyToken string `json:"replyToken"`
		Messages   []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/reply", r.URL.Path)
		assert.Equal(t, "Bearer token-a", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	l, err := NewLINE("token-a", time.Second, srv.URL)
	require.NoError(t, err)
	require.NoError(t, l.Reply(context.Background(), "reply-token", "Hi there!"))

	assert.Equal(t, "reply-token", got.ReplyToken)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "Hi there!", got.Messages[0].Text)
}

func TestLINEReplyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	l, err := NewLINE("token-a", time.Second, srv.URL)
	require.NoError(t, err)
	err = l.Reply(context.Background(), "used", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send reply")
}
