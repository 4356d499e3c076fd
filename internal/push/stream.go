package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream carrying chat messages.
	StreamName = "SUPPORT_CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"

	// ConversationsSubject carries new-conversation notices.
	ConversationsSubject = SubjectPrefix + ".conversations.new"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// token makes an ID safe to use as a single subject token.
func token(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}

// MessageSubject returns the subject carrying messages of a conversation.
func MessageSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg", SubjectPrefix, token(conversationID))
}

// TypingSubject returns the subject carrying typing indicators of a conversation.
func TypingSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.typing", SubjectPrefix, token(conversationID))
}

func (h *NATSHub) ensureStream(ctx context.Context) error {
	_, err := h.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = h.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".*.msg"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
		Compression: jetstream.S2Compression,
		Description: "Support chat messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}
