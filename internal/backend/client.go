// Package backend is the REST client for the service-center backend. Every
// response shape the backend may send is normalised here, one adapter per
// resource, so the rest of the portal only sees model types.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
	"github.com/capitalize-ai/ev-service-portal/pkg/tracing"
)

// TokenSource supplies the bearer token forwarded to the backend.
type TokenSource func(ctx context.Context) string

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *logger.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, token TokenSource, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		logger:  log.Named("backend"),
	}
}

// payload is the unwrapped data of a response: either the envelope's data
// member or a bare JSON document.
type payload json.RawMessage

// do performs a request and returns the unwrapped data.
func (c *Client) do(ctx context.Context, method, path string, body any) (payload, error) {
	ctx, span := tracing.StartSpan(ctx, "backend "+method,
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	)
	start := time.Now()

	data, err := c.roundTrip(ctx, method, path, body)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.logger.Warn("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	metrics.RecordBackendCall(method, outcome, time.Since(start).Seconds())
	tracing.End(span, err)
	return data, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (payload, error) {
	fail := func(status int, msg string, fields map[string]string, err error) error {
		return &RequestError{Method: method, Path: path, StatusCode: status, Message: msg, Fields: fields, Err: err}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fail(0, "", nil, fmt.Errorf("failed to encode body: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fail(0, "", nil, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	tracing.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, "", nil, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fail(resp.StatusCode, "", nil, fmt.Errorf("failed to read body: %w", err))
	}

	data, env, err := unwrap(raw)
	if err != nil {
		if resp.StatusCode >= 400 {
			return nil, fail(resp.StatusCode, "", nil, nil)
		}
		return nil, fail(resp.StatusCode, "", nil, err)
	}

	if resp.StatusCode >= 400 || (env != nil && env.Success != nil && !*env.Success) {
		var msg string
		var fields map[string]string
		if env != nil {
			msg = env.Message
			fields = fieldErrors(env.Errors)
		}
		return nil, fail(resp.StatusCode, msg, fields, nil)
	}

	return data, nil
}

// unwrap splits a response body into its data and, when the body is an
// envelope, the envelope itself. Empty bodies yield nil data.
func unwrap(raw []byte) (payload, *model.Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil, nil
	}
	if trimmed[0] != '{' {
		return payload(trimmed), nil, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	_, hasSuccess := keys["success"]
	_, hasData := keys["data"]
	if !hasSuccess && !hasData {
		// A bare object, not an envelope.
		return payload(trimmed), nil, nil
	}

	var env model.Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return payload(env.Data), &env, nil
}

// fieldErrors flattens {"field": "msg"} or {"field": ["msg", ...]} into
// field→first message. Field names are lower-camel-cased so "TotalCredits"
// and "totalCredits" agree.
func fieldErrors(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for field, value := range raw {
		key := lowerFirst(field)
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			out[key] = one
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err == nil && len(many) > 0 {
			out[key] = many[0]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
