package chat

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("chat session closed")

	// ErrUnknownMessage is returned when a client ID matches no message
	// in a state that allows the operation.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrEmptyMessage is returned when sending neither text nor attachments.
	ErrEmptyMessage = errors.New("message is empty")
)

// Thread is the ordered message list of one conversation. Provisional
// messages are appended as the user sends them and reconciled in place when
// the server copy arrives, from the send response or the push channel,
// whichever comes first.
type Thread struct {
	conversationID string

	mu        sync.Mutex
	messages  []model.Message
	lastTemp  string
	listeners map[int]func([]model.Message)
	nextID    int
}

// NewThread creates an empty thread.
func NewThread(conversationID string) *Thread {
	return &Thread{
		conversationID: conversationID,
		listeners:      make(map[int]func([]model.Message)),
	}
}

// ConversationID returns the conversation the thread belongs to.
func (t *Thread) ConversationID() string {
	return t.conversationID
}

// Messages returns a copy of the thread in display order.
func (t *Thread) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Find returns the message with the given server or client ID.
func (t *Thread) Find(id string) (model.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOf(id); i >= 0 {
		return t.messages[i], true
	}
	return model.Message{}, false
}

// OnChange registers fn to receive a snapshot after every change. The
// returned func removes it.
func (t *Thread) OnChange(fn func([]model.Message)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// NewTempID returns a provisional ID derived from now. IDs issued within the
// same millisecond get a numeric suffix.
func (t *Thread) NewTempID(now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	base := model.TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	id := base
	for n := 1; id == t.lastTemp || t.indexOf(id) >= 0; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	t.lastTemp = id
	return id
}

// Load replaces the history with server messages. Messages still in flight
// or failed are kept at the end unless the history already holds them.
func (t *Thread) Load(history []model.Message) {
	t.mu.Lock()
	pending := make([]model.Message, 0)
	for _, m := range t.messages {
		if m.Provisional() {
			pending = append(pending, m)
		}
	}
	t.messages = make([]model.Message, 0, len(history)+len(pending))
	for _, m := range history {
		m.Status = model.MessageSent
		t.messages = append(t.messages, m)
	}
	for _, m := range pending {
		if m.ClientID != "" && t.indexOf(m.ClientID) >= 0 {
			continue
		}
		t.messages = append(t.messages, m)
	}
	t.notify()
}

// AddProvisional appends a message the user just sent.
func (t *Thread) AddProvisional(msg model.Message) {
	t.mu.Lock()
	msg.Status = model.MessageSending
	t.messages = append(t.messages, msg)
	t.notify()
}

// Ack records a successful send of clientID. When the response carried the
// stored message it is reconciled like a push delivery; otherwise the
// provisional entry is marked sent and waits for the push copy.
func (t *Thread) Ack(clientID string, stored *model.Message) {
	t.mu.Lock()
	if stored != nil {
		m := *stored
		if m.ClientID == "" {
			m.ClientID = clientID
		}
		t.reconcile(m)
		t.notify()
		return
	}
	if i := t.indexByClientID(clientID); i >= 0 && t.messages[i].Provisional() {
		t.messages[i].Status = model.MessageSent
		t.messages[i].Error = ""
	}
	t.notify()
}

// Receive reconciles a server-confirmed message from the push channel.
// Delivering the same message again changes nothing.
func (t *Thread) Receive(msg model.Message) {
	if msg.ConversationID != "" && msg.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	t.reconcile(msg)
	t.notify()
}

// Fail marks the provisional message clientID as failed. A message the
// server already confirmed is left alone.
func (t *Thread) Fail(clientID, reason string) {
	t.mu.Lock()
	if i := t.indexByClientID(clientID); i >= 0 && t.messages[i].Provisional() {
		t.messages[i].Status = model.MessageFailed
		t.messages[i].Error = reason
	}
	t.notify()
}

// Resend moves a failed message back to sending and returns it.
func (t *Thread) Resend(clientID string) (model.Message, error) {
	t.mu.Lock()
	i := t.indexByClientID(clientID)
	if i < 0 || t.messages[i].Status != model.MessageFailed {
		t.mu.Unlock()
		return model.Message{}, fmt.Errorf("%s: %w", clientID, ErrUnknownMessage)
	}
	t.messages[i].Status = model.MessageSending
	t.messages[i].Error = ""
	msg := t.messages[i]
	t.notify()
	return msg, nil
}

// reconcile merges a server message into the thread: by server ID, then by
// client ID, then onto the oldest provisional message of the same sender
// with the same content. Anything else is new and appended.
func (t *Thread) reconcile(m model.Message) {
	m.Status = model.MessageSent
	m.Error = ""
	if m.ConversationID == "" {
		m.ConversationID = t.conversationID
	}

	if m.ID != "" {
		for i := range t.messages {
			if t.messages[i].ID == m.ID {
				t.merge(i, m, true)
				return
			}
		}
	}

	if m.ClientID != "" {
		if i := t.indexByClientID(m.ClientID); i >= 0 && t.messages[i].Provisional() {
			t.merge(i, m, true)
			return
		}
	}

	for i := range t.messages {
		cur := t.messages[i]
		if cur.Provisional() && cur.SenderID == m.SenderID && cur.Content == m.Content {
			// Guessed match; the entry's client ID is not trusted afterwards.
			m.ClientID = ""
			t.merge(i, m, false)
			return
		}
	}

	t.messages = append(t.messages, m)
}

func (t *Thread) merge(i int, m model.Message, keepClientID bool) {
	old := t.messages[i]
	if keepClientID && m.ClientID == "" {
		m.ClientID = old.ClientID
	}
	if m.ID == "" {
		m.ID = old.ID
	}
	if len(m.Attachments) == 0 {
		m.Attachments = old.Attachments
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = old.CreatedAt
	}
	if m.SenderName == "" {
		m.SenderName = old.SenderName
	}
	t.messages[i] = m
}

func (t *Thread) indexOf(id string) int {
	for i, m := range t.messages {
		if m.ID == id || (m.ClientID != "" && m.ClientID == id) {
			return i
		}
	}
	return -1
}

func (t *Thread) indexByClientID(clientID string) int {
	if clientID == "" {
		return -1
	}
	for i, m := range t.messages {
		if m.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (t *Thread) snapshot() []model.Message {
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// notify releases the lock and calls the listeners with a snapshot.
func (t *Thread) notify() {
	snap := t.snapshot()
	listeners := make([]func([]model.Message), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
