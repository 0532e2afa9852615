package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/util"
)

// Event types emitted on the auth topic.
const (
	TypeUserRegistered    = "user.registered"
	TypeLoginSucceeded    = "login.succeeded"
	TypeLoginFailed       = "login.failed"
	TypeAccountLocked     = "account.locked"
	TypeCredentialsReset  = "credentials.reset"
	TypeRecoveryRequested = "recovery.requested"
)

type Event struct {
	Type     string    `json:"type"`
	Username string    `json:"username"`
	Origin   string    `json:"origin,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher writes auth events to Kafka. A nil Publisher is valid and drops
// everything, so callers never need to branch on whether Kafka is configured.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) *Publisher {
	if !cfg.Enabled {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write auth events",
					util.ErrorField(err),
					util.Int("message_count", len(messages)),
				)
			}
		},
	}

	logger.Info("Kafka publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		util.String("topic", cfg.Topic),
	)

	return &Publisher{writer: writer, topic: cfg.Topic, logger: logger}
}

// Publish enqueues an event. Failures are logged, never returned: auth flows
// do not depend on the event stream.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode auth event", util.ErrorField(err))
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Username),
		Value: value,
	}); err != nil {
		p.logger.Warn("Failed to enqueue auth event",
			util.String("type", event.Type),
			util.ErrorField(err),
		)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
