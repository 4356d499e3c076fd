package push

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSHub is a hub backed by NATS. Chat messages travel on a JetStream
// stream so a reconnecting consumer does not miss them; typing indicators
// and conversation notices are fire-and-forget core NATS subjects.
type NATSHub struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// NATSDialer returns a Dialer connecting to NATS with cfg.
func NATSDialer(cfg NATSConfig, log *logger.Logger) Dialer {
	return func(ctx context.Context) (Hub, error) {
		return ConnectNATS(ctx, cfg, log)
	}
}

// ConnectNATS dials NATS and makes sure the chat stream exists.
func ConnectNATS(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSHub, error) {
	log = log.Named("push")
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS error", fields...)
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	hub := &NATSHub{conn: nc, js: js, logger: log}
	if err := hub.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return hub, nil
}

// SubscribeMessages consumes new messages of a conversation with an ordered
// consumer, starting from now.
func (h *NATSHub) SubscribeMessages(ctx context.Context, conversationID string, fn MessageHandler) (Subscription, error) {
	cons, err := h.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{MessageSubject(conversationID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		msg, err := backend.DecodeMessageJSON(m.Data())
		if err != nil {
			h.logger.Warn("dropping undecodable message",
				zap.String("subject", m.Subject()),
				zap.Error(err),
			)
			return
		}
		if msg.ConversationID == "" {
			msg.ConversationID = conversationID
		}
		fn(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	return subscriptionFunc(func() error {
		cc.Stop()
		return nil
	}), nil
}

func (h *NATSHub) SubscribeConversations(_ context.Context, fn ConversationHandler) (Subscription, error) {
	sub, err := h.conn.Subscribe(ConversationsSubject, func(m *nats.Msg) {
		conv, err := backend.DecodeConversationJSON(m.Data)
		if err != nil {
			h.logger.Warn("dropping undecodable conversation", zap.Error(err))
			return
		}
		fn(conv)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to conversations: %w", err)
	}
	return sub, nil
}

func (h *NATSHub) SubscribeTyping(_ context.Context, conversationID string, fn TypingHandler) (Subscription, error) {
	sub, err := h.conn.Subscribe(TypingSubject(conversationID), func(m *nats.Msg) {
		var ev model.TypingEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			h.logger.Warn("dropping undecodable typing event", zap.Error(err))
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to typing: %w", err)
	}
	return sub, nil
}

func (h *NATSHub) SendTyping(_ context.Context, ev model.TypingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal typing event: %w", err)
	}
	if err := h.conn.Publish(TypingSubject(ev.ConversationID), data); err != nil {
		return fmt.Errorf("failed to publish typing event: %w", err)
	}
	return nil
}

// PublishMessage appends msg to the chat stream. The server message ID is
// the JetStream dedupe key, so a repeated publish is stored once.
func (h *NATSHub) PublishMessage(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.ID))
	}
	if _, err := h.js.Publish(ctx, MessageSubject(msg.ConversationID), data, opts...); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (h *NATSHub) PublishConversation(_ context.Context, conv model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := h.conn.Publish(ConversationsSubject, data); err != nil {
		return fmt.Errorf("failed to publish conversation: %w", err)
	}
	return nil
}

// IsConnected returns true if connected to NATS.
func (h *NATSHub) IsConnected() bool {
	return h.conn != nil && h.conn.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (h *NATSHub) Close() error {
	if h.conn == nil {
		return nil
	}
	if err := h.conn.Drain(); err != nil {
		h.conn.Close()
		return err
	}
	return nil
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
