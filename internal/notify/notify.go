// Package notify pushes chat and insight events to subscribers.
// Delivery is best-effort; publishers never block a turn on it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	SubjectInsightCreated = "insight.created"
	SubjectSessionClosed  = "session.closed"
)

// Notifier publishes JSON payloads on a subject.
type Notifier interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

// ChatSubject returns the subject carrying assistant replies for one visitor.
// NATS treats dots as token separators, so they are replaced in ids.
func ChatSubject(chatbotID, visitorID string) string {
	return "chat." + token(chatbotID) + "." + token(visitorID)
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", ":", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close()                                      {}

// NATSNotifier publishes on a core NATS connection.
type NATSNotifier struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSNotifier connects to url. prefix, when set, is prepended to every subject.
func NewNATSNotifier(url, prefix string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatbot-insights"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

func (n *NATSNotifier) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if n.prefix != "" {
		subject = n.prefix + "." + subject
	}
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATSNotifier) Close() {
	if n.nc == nil {
		return
	}
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
}

// Fire publishes without surfacing errors; failures are logged at warn.
func Fire(ctx context.Context, n Notifier, subject string, payload any) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish notification")
	}
}
