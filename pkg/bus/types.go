package bus

import "context"

// Responder is the reply capability attached to an inbound message. It is
// bound to the conversation that produced the message and owned by the task
// handling it; the only state it shares with other tasks is the channel's
// token cache.
type Responder interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, imageURL string) error
	SendButtons(ctx context.Context, text string, buttons []CardAction) error
	SendCustom(ctx context.Context, elements []map[string]any) error
}

// CardAction is one button attached to an outbound message.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

type InboundMessage struct {
	Channel       string            `json:"channel"`
	SenderID      string            `json:"sender_id"`
	ChatID        string            `json:"chat_id"`
	Content       string            `json:"content"`
	SessionKey    string            `json:"session_key"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`

	// Reply is bound to the event that produced this message and is never
	// reused across events.
	Reply Responder `json:"-"`
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// MessageHandler is the pipeline callback boundary. Dispatch waits for it to
// return before the originating webhook acknowledges the platform.
type MessageHandler func(ctx context.Context, msg InboundMessage) error
