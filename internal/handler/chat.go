package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// ChatHandler handles the support chat endpoints.
type ChatHandler struct {
	workspaces *Workspaces
	logger     *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(ws *Workspaces, log *logger.Logger) *ChatHandler {
	return &ChatHandler{workspaces: ws, logger: log}
}

// Routes mounts the chat endpoints under r.
func (h *ChatHandler) Routes(r chi.Router) {
	r.Get("/conversations", h.Conversations)
	r.Post("/conversations", h.Start)
	r.Get("/conversations/stream", h.StreamConversations)
	r.Route("/conversations/{id}", func(r chi.Router) {
		r.Get("/messages", h.Messages)
		r.Post("/messages", h.Send)
		r.Post("/messages/{clientId}/retry", h.Retry)
		r.Post("/typing", h.Typing)
		r.Get("/stream", h.Stream)
		r.Delete("/session", h.CloseSession)
		r.With(middleware.RequireRole(service.RoleStaff)).Post("/suggest", h.Suggest)
	})
}

// session resolves the mounted session of the conversation in the path.
func (h *ChatHandler) session(w http.ResponseWriter, r *http.Request) (*service.Workspace, *chat.Session) {
	conversationID := urlParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil
	}
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return nil, nil
	}
	s, err := ws.Session(r.Context(), conversationID)
	if err != nil {
		h.logger.Warn("failed to open chat session", zap.String("conversation_id", conversationID), zap.Error(err))
		writeFailure(w, err)
		return nil, nil
	}
	return ws, s
}

// Conversations handles GET /api/v1/chat/conversations
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	convs, err := ws.Conversations(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// StartRequest opens a conversation.
type StartRequest struct {
	Subject string `json:"subject"`
}

// Start handles POST /api/v1/chat/conversations
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateSubject(req.Subject); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	conv, err := ws.StartConversation(r.Context(), req.Subject)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// Messages handles GET /api/v1/chat/conversations/{id}/messages
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	_, s := h.session(w, r)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// SendRequest is a new chat message.
type SendRequest struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// SendResponse carries the message as it stands after the send, including a
// failed message the client can retry.
type SendResponse struct {
	Message model.Message     `json:"message"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Send handles POST /api/v1/chat/conversations/{id}/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Attachments) == 0 {
		if err := middleware.ValidateMessageContent(req.Content); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	_, s := h.session(w, r)
	if s == nil {
		return
	}
	msg, err := s.Send(r.Context(), req.Content, req.Attachments)
	h.writeDelivery(w, msg, err, http.StatusCreated)
}

// Retry handles POST /api/v1/chat/conversations/{id}/messages/{clientId}/retry
func (h *ChatHandler) Retry(w http.ResponseWriter, r *http.Request) {
	_, s := h.session(w, r)
	if s == nil {
		return
	}
	msg, err := s.Retry(r.Context(), urlParam(r, "clientId"))
	h.writeDelivery(w, msg, err, http.StatusOK)
}

func (h *ChatHandler) writeDelivery(w http.ResponseWriter, msg model.Message, err error, okStatus int) {
	if err == nil {
		writeJSON(w, okStatus, SendResponse{Message: msg})
		return
	}
	if msg.Status != model.MessageFailed {
		writeFailure(w, err)
		return
	}
	status, body := failure(err)
	writeJSON(w, status, SendResponse{Message: msg, Error: body.Error, Fields: body.Fields})
}

// TypingRequest reports the message box state: its text, or that it lost
// focus.
type TypingRequest struct {
	Text string `json:"text"`
	Blur bool   `json:"blur"`
}

// Typing handles POST /api/v1/chat/conversations/{id}/typing
func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_, s := h.session(w, r)
	if s == nil {
		return
	}
	if req.Blur {
		s.Blur()
	} else {
		s.Input(req.Text)
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloseSession handles DELETE /api/v1/chat/conversations/{id}/session
// It unmounts the conversation and releases its push lease.
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	if !ws.CloseSession(urlParam(r, "id")) {
		writeError(w, http.StatusNotFound, "no open session for conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Suggest handles POST /api/v1/chat/conversations/{id}/suggest
// With ?stream=true the draft is streamed as SSE token events.
func (h *ChatHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	ws, s := h.session(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()

	if r.URL.Query().Get("stream") != "true" {
		suggestion, err := ws.Suggest(ctx, s.ConversationID())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, suggestion)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	suggestion, err := ws.SuggestStream(ctx, s.ConversationID(), func(token string, index int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return sendSSEEvent(w, flusher, "token", map[string]any{"token": token, "index": index})
	})
	if err != nil {
		if !errors.Is(err, ctx.Err()) {
			_, body := failure(err)
			sendSSEEvent(w, flusher, "error", body)
		}
		return
	}
	sendSSEEvent(w, flusher, "done", suggestion)
}
