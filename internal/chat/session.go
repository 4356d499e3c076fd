// Package chat is the optimistic message pipeline of the support widget.
// A Session owns one conversation's thread for as long as a chat view is
// mounted: messages appear the moment they are sent and are reconciled with
// the server copy when it arrives.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/push"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
)

// API is the backend surface a session needs.
type API interface {
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.Message, error)
}

// Participant identifies the local user of a session.
type Participant struct {
	ID   string
	Name string
	Role string
}

// Options configures a session.
type Options struct {
	Typing TypingConfig
	Clock  Clock
}

// Snapshot is the renderable state of a session.
type Snapshot struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
	Typing         []string        `json:"typing"`
}

// Session is one mounted chat view.
type Session struct {
	thread *Thread
	api    API
	lease  *push.Lease
	self   Participant
	clock  Clock
	typist *Typist
	logger *logger.Logger

	mu        sync.Mutex
	closed    bool
	subs      []push.Subscription
	peers     map[string]bool
	listeners map[int]func(Snapshot)
	nextID    int
	detach    func()
}

// Open leases the push channel, joins the conversation and loads its
// history. The lease is held until Close.
func Open(ctx context.Context, pool *push.Pool, api API, conversationID string, self Participant, opts Options, log *logger.Logger) (*Session, error) {
	lease, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Session{
		thread: NewThread(conversationID),
		api:    api,
		lease:  lease,
		self:   self,
		clock:  clock,
		logger: log.Named("chat").With(
			zap.String("conversation_id", conversationID),
			zap.String("user_id", self.ID),
		),
		peers:     make(map[string]bool),
		listeners: make(map[int]func(Snapshot)),
	}
	s.typist = NewTypist(opts.Typing, clock, s.sendTyping)
	s.detach = s.thread.OnChange(func([]model.Message) { s.publish() })

	hub := lease.Hub()
	msgSub, err := hub.SubscribeMessages(ctx, conversationID, s.receive)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to join conversation: %w", err)
	}
	s.subs = append(s.subs, msgSub)

	typingSub, err := hub.SubscribeTyping(ctx, conversationID, s.peerTyping)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to subscribe to typing: %w", err)
	}
	s.subs = append(s.subs, typingSub)

	history, err := api.Messages(ctx, conversationID)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	s.thread.Load(history)

	return s, nil
}

// ConversationID returns the conversation of the session.
func (s *Session) ConversationID() string {
	return s.thread.ConversationID()
}

// Messages returns the thread in display order.
func (s *Session) Messages() []model.Message {
	return s.thread.Messages()
}

// Snapshot returns the renderable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	typing := make([]string, 0, len(s.peers))
	for id, on := range s.peers {
		if on {
			typing = append(typing, id)
		}
	}
	s.mu.Unlock()
	slices.Sort(typing)

	return Snapshot{
		ConversationID: s.ConversationID(),
		Messages:       s.thread.Messages(),
		Typing:         typing,
	}
}

// Watch registers fn to receive a snapshot after every change. The returned
// func removes it.
func (s *Session) Watch(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Send appends a provisional message and posts it. On failure the message
// stays in the thread marked failed, and the returned error carries the
// reason.
func (s *Session) Send(ctx context.Context, content string, attachments []model.Attachment) (model.Message, error) {
	if s.isClosed() {
		return model.Message{}, ErrClosed
	}
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return model.Message{}, ErrEmptyMessage
	}

	tempID := s.thread.NewTempID(s.clock.Now())
	msg := model.Message{
		ID:             tempID,
		ClientID:       tempID,
		ConversationID: s.ConversationID(),
		SenderID:       s.self.ID,
		SenderName:     s.self.Name,
		SenderRole:     s.self.Role,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      s.clock.Now(),
	}
	s.thread.AddProvisional(msg)
	metrics.ChatMessagesTotal.WithLabelValues(string(model.MessageSending)).Inc()

	return s.deliver(ctx, msg)
}

// Retry re-sends a failed message with its original client ID.
func (s *Session) Retry(ctx context.Context, clientID string) (model.Message, error) {
	if s.isClosed() {
		return model.Message{}, ErrClosed
	}
	msg, err := s.thread.Resend(clientID)
	if err != nil {
		return model.Message{}, err
	}
	metrics.ChatMessagesTotal.WithLabelValues(string(model.MessageSending)).Inc()
	return s.deliver(ctx, msg)
}

func (s *Session) deliver(ctx context.Context, msg model.Message) (model.Message, error) {
	stored, err := s.api.SendMessage(ctx, model.SendMessageRequest{
		ConversationID: msg.ConversationID,
		ClientID:       msg.ClientID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Attachments:    msg.Attachments,
	})
	if err != nil {
		s.thread.Fail(msg.ClientID, backend.UserMessage(err))
		metrics.ChatMessagesTotal.WithLabelValues(string(model.MessageFailed)).Inc()
		s.logger.Warn("message send failed", zap.String("client_id", msg.ClientID), zap.Error(err))
		if cur, ok := s.thread.Find(msg.ClientID); ok {
			return cur, err
		}
		return msg, err
	}

	s.thread.Ack(msg.ClientID, stored)
	metrics.ChatMessagesTotal.WithLabelValues(string(model.MessageSent)).Inc()
	s.typist.Stop()

	id := msg.ClientID
	if stored != nil && stored.ID != "" {
		id = stored.ID
	}
	if cur, ok := s.thread.Find(id); ok {
		return cur, nil
	}
	return msg, nil
}

// Input reports the current content of the message box.
func (s *Session) Input(text string) {
	s.typist.Input(text)
}

// Blur reports that the message box lost focus.
func (s *Session) Blur() {
	s.typist.Stop()
}

// Close leaves the conversation and releases the push lease. Timers still
// pending become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	clear(s.listeners)
	s.mu.Unlock()

	s.typist.Close()
	if s.detach != nil {
		s.detach()
	}
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.Error(err))
		}
	}
	s.lease.Release()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) receive(msg model.Message) {
	if s.isClosed() {
		return
	}
	s.thread.Receive(msg)
}

func (s *Session) peerTyping(ev model.TypingEvent) {
	if ev.UserID == s.self.ID {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.peers[ev.UserID] = ev.Typing
	s.mu.Unlock()
	s.publish()
}

func (s *Session) sendTyping(typing bool) {
	if s.isClosed() {
		return
	}
	ev := model.TypingEvent{
		ConversationID: s.ConversationID(),
		UserID:         s.self.ID,
		Typing:         typing,
		At:             s.clock.Now(),
	}
	if err := s.lease.Hub().SendTyping(context.Background(), ev); err != nil {
		s.logger.Debug("typing indicator not sent", zap.Bool("typing", typing), zap.Error(err))
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}
