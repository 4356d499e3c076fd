package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
)

// HeartbeatInterval is how often an idle SSE stream sends a heartbeat.
var HeartbeatInterval = 30 * time.Second

// HeartbeatEvent keeps idle streams open through proxies.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/chat/conversations/{id}/stream
// It sends the current snapshot, then a new snapshot after every change to
// the thread or the typing indicators. Closing the stream counts as the
// message box losing focus.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	_, s := h.session(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Latest snapshot wins; a slow client skips intermediate states.
	updates := make(chan chat.Snapshot, 1)
	unwatch := s.Watch(func(snap chat.Snapshot) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snap:
		default:
		}
	})
	defer unwatch()
	defer s.Blur()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": s.ConversationID(),
	})
	sendSSEEvent(w, flusher, "snapshot", s.Snapshot())

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("conversation_id", s.ConversationID()))
			return
		case snap := <-updates:
			if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				h.logger.Warn("failed to encode snapshot", zap.Error(err))
			}
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()})
		}
	}
}

// StreamConversations handles GET /api/v1/chat/conversations/stream
// It pushes a conversation event whenever a new support conversation starts.
func (h *ChatHandler) StreamConversations(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	ctx := r.Context()

	convs := make(chan model.Conversation, 16)
	stop, err := ws.WatchConversations(ctx, func(c model.Conversation) {
		select {
		case convs <- c:
		default:
			h.logger.Warn("dropping conversation notice for slow client", zap.String("conversation_id", c.ID))
		}
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer stop()

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{"user_id": ws.User().ID})

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-convs:
			sendSSEEvent(w, flusher, "conversation", c)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()})
		}
	}
}
