package model

import (
	"time"
)

// Conversation is a support chat thread between a customer (or guest) and staff.
type Conversation struct {
	ID            string     `json:"id" mapstructure:"id"`
	CustomerID    string     `json:"customer_id" mapstructure:"customerId"`
	CustomerName  string     `json:"customer_name" mapstructure:"customerName"`
	GuestSession  string     `json:"guest_session,omitempty" mapstructure:"guestSessionId"`
	StaffID       string     `json:"staff_id,omitempty" mapstructure:"staffId"`
	Subject       string     `json:"subject" mapstructure:"subject"`
	Status        string     `json:"status" mapstructure:"status"`
	UnreadCount   int        `json:"unread_count" mapstructure:"unreadCount"`
	LastMessage   string     `json:"last_message,omitempty" mapstructure:"lastMessage"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" mapstructure:"lastMessageAt"`
	CreatedAt     time.Time  `json:"created_at" mapstructure:"createdAt"`
}
