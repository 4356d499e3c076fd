package model

import (
	"strings"
	"time"
)

// MessageStatus is the delivery state of a chat message.
type MessageStatus string

const (
	MessageSending MessageStatus = "sending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// TempIDPrefix marks identifiers generated locally before the server assigns one.
const TempIDPrefix = "temp-"

// Attachment is a file attached to a message. Provisional messages carry a
// local Preview reference until the server returns the stored URL.
type Attachment struct {
	Name        string `json:"name" mapstructure:"fileName"`
	URL         string `json:"url,omitempty" mapstructure:"url"`
	Preview     string `json:"preview,omitempty" mapstructure:"-"`
	ContentType string `json:"content_type,omitempty" mapstructure:"contentType"`
	Size        int64  `json:"size,omitempty" mapstructure:"size"`
}

// Message is a chat message.
type Message struct {
	// Identity
	ID             string `json:"id" mapstructure:"id"`
	ClientID       string `json:"client_id,omitempty" mapstructure:"clientMessageId"`
	ConversationID string `json:"conversation_id" mapstructure:"conversationId"`

	// Content
	SenderID    string       `json:"sender_id" mapstructure:"senderId"`
	SenderName  string       `json:"sender_name,omitempty" mapstructure:"senderName"`
	SenderRole  string       `json:"sender_role,omitempty" mapstructure:"senderRole"`
	Content     string       `json:"content" mapstructure:"content"`
	Attachments []Attachment `json:"attachments,omitempty" mapstructure:"attachments"`

	CreatedAt time.Time     `json:"created_at" mapstructure:"createdAt"`
	Status    MessageStatus `json:"status" mapstructure:"-"`
	Error     string        `json:"error,omitempty" mapstructure:"-"`
}

// Provisional reports whether the message still carries a locally generated ID.
func (m Message) Provisional() bool {
	return m.ID == "" || strings.HasPrefix(m.ID, TempIDPrefix)
}

// SendMessageRequest is the body sent to the backend for a new message.
type SendMessageRequest struct {
	ConversationID string       `json:"conversationId"`
	ClientID       string       `json:"clientMessageId"`
	SenderID       string       `json:"senderId"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// TypingEvent is a typing indicator signal on a conversation.
type TypingEvent struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Typing         bool      `json:"typing"`
	At             time.Time `json:"at"`
}
