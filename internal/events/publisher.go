package events

import (
	"context"
	"encoding/json"
	"time"

	"payauth-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TransactionEvent is the notification emitted after a ledger commit, keyed
// by account so per-account ordering is preserved.
type TransactionEvent struct {
	RecordID   string                   `json:"record_id"`
	AccountID  string                   `json:"account_id"`
	Type       domain.TransactionType   `json:"type"`
	Amount     int64                    `json:"amount"`
	Direction  domain.Direction         `json:"direction"`
	Status     domain.TransactionStatus `json:"status"`
	AuthMethod string                   `json:"auth_method,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
}

type Publisher interface {
	PublishTransaction(ctx context.Context, ev TransactionEvent) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) Publisher {
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

func (p *kafkaPublisher) PublishTransaction(ctx context.Context, ev TransactionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: payload,
		Time:  ev.OccurredAt,
	})
	if err != nil {
		p.logger.Error("publish transaction event",
			zap.String("record_id", ev.RecordID),
			zap.Error(err),
		)
	}
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransaction(context.Context, TransactionEvent) error { return nil }
func (NopPublisher) Close() error                                               { return nil }
