// Package handler provides the HTTP handlers of the portal API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/capitalize-ai/ev-service-portal/internal/assist"
	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/dispatch"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Prompt string            `json:"prompt,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeFailure maps a domain error to its status and user-facing message.
func writeFailure(w http.ResponseWriter, err error) {
	status, body := failure(err)
	writeJSON(w, status, body)
}

func failure(err error) (int, ErrorResponse) {
	var (
		verrs  validation.Errors
		reqErr *backend.RequestError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: verrs.Error(), Fields: verrs}
	case errors.Is(err, listview.ErrNotFound), errors.Is(err, chat.ErrUnknownMessage):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, listview.ErrStale):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, chat.ErrClosed), errors.Is(err, service.ErrWorkspaceClosed):
		return http.StatusGone, ErrorResponse{Error: err.Error()}
	case errors.Is(err, assist.ErrNoTranscript):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrSuggestionsDisabled):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()}
	case errors.As(err, &reqErr):
		status := http.StatusBadGateway
		if reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 {
			status = reqErr.StatusCode
		}
		return status, ErrorResponse{Error: backend.UserMessage(err), Fields: reqErr.Fields}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: backend.FallbackMessage}
}

// writeDeclined answers a delete that was not confirmed with the prompt the
// client should show.
func writeDeclined(w http.ResponseWriter, prompt string) {
	writeJSON(w, http.StatusConflict, ErrorResponse{Error: dispatch.ErrNotConfirmed.Error(), Prompt: prompt})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses a numeric record ID from the route.
func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := middleware.ParseID(urlParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}

// startSSE writes the event-stream headers. It reports false after answering
// with an error when the writer cannot stream. The server write timeout does
// not apply to the stream.
func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	return flusher, true
}
