package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSource replays captured messages published to a subject as JSON
// feed.Message payloads. Used for backfill and load testing against the
// same pipeline the live Telegram source feeds.
type NATSSource struct {
	url     string
	subject string
	logger  zerolog.Logger
}

// NewNATSSource configures a replay source. Empty subject selects the
// default "orderscout.messages".
func NewNATSSource(url, subject string, logger zerolog.Logger) *NATSSource {
	if subject == "" {
		subject = "orderscout.messages"
	}
	return &NATSSource{
		url:     url,
		subject: subject,
		logger:  logger.With().Str("component", "nats_feed").Logger(),
	}
}

// Run subscribes and dispatches until ctx is cancelled. Malformed
// payloads are logged and skipped; the subscription survives them.
func (s *NATSSource) Run(ctx context.Context, handler Handler) error {
	conn, err := nats.Connect(s.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS %s: %w", s.url, err)
	}
	defer conn.Close()

	sub, err := conn.Subscribe(s.subject, func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			s.logger.Warn().Err(err).Int("bytes", len(m.Data)).Msg("Skipping malformed replay payload")
			return
		}
		if msg.Time.IsZero() {
			msg.Time = time.Now().UTC()
		}
		handler(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	s.logger.Info().Str("url", s.url).Str("subject", s.subject).Msg("Replay feed subscribed")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("NATS drain failed")
	}
	return ctx.Err()
}
