// Package feed delivers inbound chat messages to the detection
// pipeline. The live source is the Telegram client; a NATS source
// replays captured traffic for backfill and load testing.
package feed

import (
	"context"
	"time"

	"github.com/orderscout/orderscout/internal/types"
)

// Chat identifies the source of a message.
type Chat struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Username string         `json:"username,omitempty"`
	Kind     types.ChatKind `json:"kind"`
}

// Author identifies who sent a message.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsBot  bool   `json:"is_bot"`
	IsSelf bool   `json:"is_self"`
}

// Message is one inbound text, already reduced to what the pipeline
// needs. Body carries either the text or the media caption.
type Message struct {
	ID        string    `json:"id"`
	Chat      Chat      `json:"chat"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	HasMedia  bool      `json:"has_media"`
	Forwarded bool      `json:"forwarded"`
	Time      time.Time `json:"time"`
}

// Handler consumes one message. Handlers must not panic; sources invoke
// them from their own dispatch goroutines.
type Handler func(ctx context.Context, msg Message)

// Source is a stream of inbound messages. Run blocks until ctx is
// cancelled or the source fails.
type Source interface {
	Run(ctx context.Context, handler Handler) error
}
