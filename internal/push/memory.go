package push

import (
	"context"
	"slices"
	"sync"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// MemoryHub is an in-process hub. Handlers run synchronously on the
// publishing goroutine, outside the hub lock.
type MemoryHub struct {
	mu            sync.Mutex
	closed        bool
	next          int
	messages      map[string]map[int]MessageHandler
	typing        map[string]map[int]TypingHandler
	conversations map[int]ConversationHandler
}

// NewMemoryHub creates an empty in-process hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		messages:      make(map[string]map[int]MessageHandler),
		typing:        make(map[string]map[int]TypingHandler),
		conversations: make(map[int]ConversationHandler),
	}
}

// MemoryDialer returns a Dialer that hands out hub. Closing a lease-scoped
// connection does not close hub itself, so it can be re-dialled.
func MemoryDialer(hub *MemoryHub) Dialer {
	return func(context.Context) (Hub, error) {
		return &memoryConn{hub: hub}, nil
	}
}

func (h *MemoryHub) SubscribeMessages(_ context.Context, conversationID string, fn MessageHandler) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	id := h.id()
	if h.messages[conversationID] == nil {
		h.messages[conversationID] = make(map[int]MessageHandler)
	}
	h.messages[conversationID][id] = fn
	return h.unsubscriber(func() { delete(h.messages[conversationID], id) }), nil
}

func (h *MemoryHub) SubscribeConversations(_ context.Context, fn ConversationHandler) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	id := h.id()
	h.conversations[id] = fn
	return h.unsubscriber(func() { delete(h.conversations, id) }), nil
}

func (h *MemoryHub) SubscribeTyping(_ context.Context, conversationID string, fn TypingHandler) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	id := h.id()
	if h.typing[conversationID] == nil {
		h.typing[conversationID] = make(map[int]TypingHandler)
	}
	h.typing[conversationID][id] = fn
	return h.unsubscriber(func() { delete(h.typing[conversationID], id) }), nil
}

func (h *MemoryHub) SendTyping(_ context.Context, ev model.TypingEvent) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	handlers := collect(h.typing[ev.ConversationID])
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
	return nil
}

// PublishMessage delivers msg to the subscribers of its conversation.
func (h *MemoryHub) PublishMessage(_ context.Context, msg model.Message) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	handlers := collect(h.messages[msg.ConversationID])
	h.mu.Unlock()

	msg.Status = model.MessageSent
	for _, fn := range handlers {
		fn(msg)
	}
	return nil
}

// PublishConversation delivers a new-conversation notice.
func (h *MemoryHub) PublishConversation(_ context.Context, conv model.Conversation) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	handlers := collect(h.conversations)
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(conv)
	}
	return nil
}

// Subscribers returns the number of registrations, across all kinds.
func (h *MemoryHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.conversations)
	for _, m := range h.messages {
		n += len(m)
	}
	for _, m := range h.typing {
		n += len(m)
	}
	return n
}

func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	clear(h.messages)
	clear(h.typing)
	clear(h.conversations)
	return nil
}

func (h *MemoryHub) id() int {
	h.next++
	return h.next
}

func (h *MemoryHub) unsubscriber(remove func()) Subscription {
	var once sync.Once
	return subscriptionFunc(func() error {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			remove()
		})
		return nil
	})
}

// collect returns the handlers in registration order.
func collect[H any](m map[int]H) []H {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]H, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// memoryConn is one dialled connection to a shared MemoryHub. Closing it
// drops the subscriptions made through it.
type memoryConn struct {
	hub    *MemoryHub
	mu     sync.Mutex
	closed bool
	subs   []Subscription
}

func (c *memoryConn) track(sub Subscription, err error) (Subscription, error) {
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = sub.Unsubscribe()
		return nil, ErrClosed
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

func (c *memoryConn) SubscribeMessages(ctx context.Context, conversationID string, fn MessageHandler) (Subscription, error) {
	return c.track(c.hub.SubscribeMessages(ctx, conversationID, fn))
}

func (c *memoryConn) SubscribeConversations(ctx context.Context, fn ConversationHandler) (Subscription, error) {
	return c.track(c.hub.SubscribeConversations(ctx, fn))
}

func (c *memoryConn) SubscribeTyping(ctx context.Context, conversationID string, fn TypingHandler) (Subscription, error) {
	return c.track(c.hub.SubscribeTyping(ctx, conversationID, fn))
}

func (c *memoryConn) SendTyping(ctx context.Context, ev model.TypingEvent) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.hub.SendTyping(ctx, ev)
}

func (c *memoryConn) PublishMessage(ctx context.Context, msg model.Message) error {
	return c.hub.PublishMessage(ctx, msg)
}

func (c *memoryConn) PublishConversation(ctx context.Context, conv model.Conversation) error {
	return c.hub.PublishConversation(ctx, conv)
}

func (c *memoryConn) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.closed = true
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return nil
}
