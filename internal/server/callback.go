package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"keyword_relay/internal/rules"
	"keyword_relay/internal/unmatched"
)

// errNoTenant means no configured channel secret verified the signature.
var errNoTenant = errors.New("signature does not match any tenant")

// handleVerify answers the platform's endpoint verification and liveness
// GETs.
func handleVerify(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// handleCallback resolves the tenant by signature, then handles each event
// of the delivery in order. Authenticated deliveries are always
// acknowledged with 200, whatever the match outcome, so the platform does
// not redeliver.
func (s *Server) handleCallback(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		s.metrics.Webhook("rejected")
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	tenant, cb, err := s.resolveTenant(req, body)
	if err != nil {
		s.metrics.Webhook("rejected")
		s.logger.Warn("Rejected webhook", slog.Any("error", err))
		return c.String(http.StatusBadRequest, "Bad Request")
	}
	s.metrics.Webhook("accepted")

	ctx := req.Context()
	for _, event := range cb.Events {
		s.handleEvent(ctx, tenant, event)
	}

	return c.String(http.StatusOK, "OK")
}

// resolveTenant tries each tenant's secret in order. A body that verifies
// but does not parse is rejected rather than tried against the next tenant.
func (s *Server) resolveTenant(req *http.Request, body []byte) (*Tenant, *webhook.CallbackRequest, error) {
	for i := range s.tenants {
		t := &s.tenants[i]

		r := req.Clone(req.Context())
		r.Body = io.NopCloser(bytes.NewReader(body))

		cb, err := webhook.ParseRequest(t.ChannelSecret, r)
		if err == nil {
			return t, cb, nil
		}
		if errors.Is(err, webhook.ErrInvalidSignature) {
			continue
		}
		return nil, nil, fmt.Errorf("tenant %s: parse webhook: %w", t.Name, err)
	}
	return nil, nil, errNoTenant
}

func (s *Server) handleEvent(ctx context.Context, t *Tenant, event webhook.EventInterface) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		s.logger.Debug("Ignoring event",
			slog.String("tenant", t.Name),
			slog.String("event_type", fmt.Sprintf("%T", event)))
		return
	}

	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return
	}

	sender := senderID(e.Source)
	log := s.logger.With(
		slog.String("tenant", t.Name),
		slog.String("table", t.TableID),
		slog.String("sender", sender))

	rule, matched := rules.FirstMatch(msg.Text, s.cache.Rules(ctx, t.TableID))

	if matched {
		s.metrics.Message(t.Name, "matched")
		log.Info("Message matched", slog.Int("priority", rule.Priority), slog.Int("row", rule.Row))
		s.reply(ctx, t, e.ReplyToken, rule.Reply, log)
		if s.logMatched {
			s.record(t, sender, msg.Text, true)
		}
		return
	}

	s.metrics.Message(t.Name, "unmatched")
	log.Info("Message unmatched")
	if s.fallbackReply != "" {
		s.reply(ctx, t, e.ReplyToken, s.fallbackReply, log)
	}
	s.record(t, sender, msg.Text, false)
}

// reply is bounded by the reply timeout. A failed send is logged only; it
// says nothing about matching.
func (s *Server) reply(ctx context.Context, t *Tenant, token, text string, log *slog.Logger) {
	if token == "" {
		log.Debug("Empty reply token, skipping reply")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	if err := t.Replier.Reply(ctx, token, text); err != nil {
		s.metrics.Reply(t.Name, "error")
		log.Error("Failed to send reply", slog.Any("error", err))
		return
	}
	s.metrics.Reply(t.Name, "ok")
}

func (s *Server) record(t *Tenant, sender, text string, matched bool) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(unmatched.Entry{
		TableID:  t.TableID,
		SenderID: sender,
		Text:     text,
		Matched:  matched,
	})
}

// senderID prefers the user id and falls back to the group or room id.
func senderID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		if s.UserId != "" {
			return s.UserId
		}
		return s.GroupId
	case webhook.RoomSource:
		if s.UserId != "" {
			return s.UserId
		}
		return s.RoomId
	default:
		return ""
	}
}
