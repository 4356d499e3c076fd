package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

// Conversations lists the support conversations visible to the caller.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, DecodeConversation)
}

// StartConversation opens a new conversation, for a guest when customerID is empty.
func (c *Client) StartConversation(ctx context.Context, customerID, guestSession, subject string) (*model.Conversation, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/chat/conversations", map[string]string{
		"customerId":     customerID,
		"guestSessionId": guestSession,
		"subject":        subject,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne(data, DecodeConversation)
}

// Messages lists the messages of a conversation in server order.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/chat/conversations/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, DecodeMessage)
}

// SendMessage posts a message. The returned message is nil when the backend
// only acknowledged; the stored copy then arrives over the push channel.
func (c *Client) SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.Message, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/chat/messages", req)
	if err != nil {
		return nil, err
	}
	return decodeOne(data, DecodeMessage)
}
