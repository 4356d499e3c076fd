// Package push carries the real-time side of support chat: new messages,
// new-conversation notices and typing indicators.
package push

import (
	"context"
	"errors"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// ErrClosed is returned by operations on a closed hub.
var ErrClosed = errors.New("push hub closed")

// MessageHandler receives messages delivered on a conversation.
type MessageHandler func(model.Message)

// ConversationHandler receives new-conversation notices.
type ConversationHandler func(model.Conversation)

// TypingHandler receives typing indicators on a conversation.
type TypingHandler func(model.TypingEvent)

// Subscription is an active registration on a hub.
type Subscription interface {
	Unsubscribe() error
}

// Hub is a connected push channel. Joining a conversation group is
// subscribing to its messages.
type Hub interface {
	SubscribeMessages(ctx context.Context, conversationID string, fn MessageHandler) (Subscription, error)
	SubscribeConversations(ctx context.Context, fn ConversationHandler) (Subscription, error)
	SubscribeTyping(ctx context.Context, conversationID string, fn TypingHandler) (Subscription, error)
	SendTyping(ctx context.Context, ev model.TypingEvent) error
	Close() error
}

// Publisher injects events into a hub. The production push service is the
// publisher there; the portal uses it to fan out messages it stored itself
// and in tests.
type Publisher interface {
	PublishMessage(ctx context.Context, msg model.Message) error
	PublishConversation(ctx context.Context, conv model.Conversation) error
}

// Dialer connects a new hub.
type Dialer func(ctx context.Context) (Hub, error)

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error {
	return f()
}
