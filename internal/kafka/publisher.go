package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var (
	_ feed.EventPublisher = (*Publisher)(nil)
	_ feed.EventPublisher = NoopPublisher{}
)

// Publisher emits a message.sent event for every appended message, keyed by
// message id.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.SugaredLogger
}

func NewProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	conf := sarama.NewConfig()
	conf.ClientID = cfg.ClientID
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Return.Successes = true
	conf.Producer.Retry.Max = 3
	conf.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("new sync producer: %w", err)
	}
	return producer, nil
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (p *Publisher) PublishMessageSent(ctx context.Context, msg models.Message) error {
	value, err := json.Marshal(models.NewMessageSentEvent(msg))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(msg.ID),
		Value:     sarama.ByteEncoder(value),
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("send message.sent: %w", err)
	}

	p.logger.Debugw("published message.sent",
		"message_id", msg.ID,
		"topic", p.topic,
		"partition", partition,
		"offset", offset)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishMessageSent(context.Context, models.Message) error {
	return nil
}
