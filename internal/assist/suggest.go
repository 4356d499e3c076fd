package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/tracing"
)

// ErrNoTranscript is returned when there is nothing to reply to.
var ErrNoTranscript = errors.New("conversation has no messages")

const systemPrompt = `Bạn là nhân viên hỗ trợ của trung tâm dịch vụ xe điện.
Soạn một câu trả lời ngắn gọn, lịch sự bằng tiếng Việt cho tin nhắn gần nhất của khách hàng.
Không hứa hẹn giá hoặc thời gian nếu cuộc trò chuyện chưa nêu rõ. Chỉ trả về nội dung câu trả lời.`

// Options configures a Suggester.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// History is how many of the latest messages go into the prompt.
	History int
}

// Suggestion is a drafted reply. It is never sent automatically.
type Suggestion struct {
	Text      string `json:"text"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latency_ms"`
}

// Suggester drafts staff replies from a conversation transcript.
type Suggester struct {
	client Client
	opts   Options
	logger *logger.Logger
}

// NewSuggester creates a suggester over client.
func NewSuggester(client Client, opts Options, log *logger.Logger) *Suggester {
	if opts.History <= 0 {
		opts.History = 20
	}
	return &Suggester{client: client, opts: opts, logger: log.Named("assist")}
}

// Suggest drafts a reply as staffID.
func (s *Suggester) Suggest(ctx context.Context, msgs []model.Message, staffID string) (Suggestion, error) {
	req, err := s.request(msgs, staffID)
	if err != nil {
		return Suggestion{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "assist.suggest", attribute.String("llm.provider", s.client.Name()))
	resp, err := s.client.Complete(ctx, req)
	tracing.End(span, err)
	if err != nil {
		s.logger.Warn("suggestion failed", zap.String("provider", s.client.Name()), zap.Error(err))
		return Suggestion{}, fmt.Errorf("failed to draft reply: %w", err)
	}
	return s.suggestion(resp), nil
}

// Stream drafts a reply, passing tokens to fn as they arrive.
func (s *Suggester) Stream(ctx context.Context, msgs []model.Message, staffID string, fn TokenFunc) (Suggestion, error) {
	req, err := s.request(msgs, staffID)
	if err != nil {
		return Suggestion{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "assist.stream", attribute.String("llm.provider", s.client.Name()))
	resp, err := s.client.CompleteStream(ctx, req, fn)
	tracing.End(span, err)
	if err != nil {
		s.logger.Warn("suggestion stream failed", zap.String("provider", s.client.Name()), zap.Error(err))
		return Suggestion{}, fmt.Errorf("failed to draft reply: %w", err)
	}
	return s.suggestion(resp), nil
}

func (s *Suggester) request(msgs []model.Message, staffID string) (*CompletionRequest, error) {
	transcript := Transcript(msgs, staffID, s.opts.History)
	if transcript == "" {
		return nil, ErrNoTranscript
	}
	return &CompletionRequest{
		Model:       s.opts.Model,
		System:      systemPrompt,
		Prompt:      "Cuộc trò chuyện:\n" + transcript,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}, nil
}

func (s *Suggester) suggestion(resp *CompletionResponse) Suggestion {
	return Suggestion{
		Text:      strings.TrimSpace(resp.Content),
		Provider:  s.client.Name(),
		Model:     resp.Model,
		LatencyMs: resp.LatencyMs,
	}
}

// Transcript renders the last limit confirmed messages, one per line,
// labelling staffID's messages as staff. Failed and empty messages are left
// out.
func Transcript(msgs []model.Message, staffID string, limit int) string {
	kept := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Status == model.MessageFailed || strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}

	var b strings.Builder
	for _, m := range kept {
		speaker := "Khách hàng"
		if m.SenderID == staffID || strings.EqualFold(m.SenderRole, "staff") {
			speaker = "Nhân viên"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(m.Content))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
