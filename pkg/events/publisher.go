package events

import (
	"context"
	"encoding/json"
	"fmt"
	"storefront-service/pkg/config"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicCartItemAdded      = "cart.item.added"
	TopicCartItemRemoved    = "cart.item.removed"
)

// Publisher emits domain events after the state they describe has been committed
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
}

// OrderPlaced is emitted once per successful checkout
type OrderPlaced struct {
	OrderID     uint             `json:"order_id"`
	UserID      uint             `json:"user_id"`
	TotalAmount string           `json:"total_amount"`
	Items       []OrderPlacedRow `json:"items"`
	PlacedAt    time.Time        `json:"placed_at"`
}

type OrderPlacedRow struct {
	ProductID uint   `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// OrderStatusChanged is emitted for every applied status transition
type OrderStatusChanged struct {
	OrderID   uint      `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Restocked bool      `json:"restocked"`
	ChangedAt time.Time `json:"changed_at"`
}

type CartItemChanged struct {
	UserID    uint `json:"user_id"`
	ProductID uint `json:"product_id,omitempty"`
	ItemID    uint `json:"item_id"`
	Quantity  int  `json:"quantity,omitempty"`
}

// KafkaPublisher sends JSON encoded events through a synchronous producer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	log      *zap.Logger
}

// NewKafkaPublisher connects to the brokers, retrying while they come up
func NewKafkaPublisher(cfg config.KafkaConfig, log *zap.Logger) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3

	attempts := cfg.Retries
	if attempts < 1 {
		attempts = 1
	}

	var (
		producer sarama.SyncProducer
		err      error
	)
	for i := 1; i <= attempts; i++ {
		producer, err = sarama.NewSyncProducer(cfg.Brokers, sc)
		if err == nil {
			log.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Brokers))
			return NewPublisher(producer, cfg.TopicPrefix, log), nil
		}
		log.Warn("Waiting for Kafka",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if i < attempts {
			time.Sleep(cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("start kafka producer: %w", err)
}

// NewPublisher wraps an existing producer
func NewPublisher(producer sarama.SyncProducer, topicPrefix string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: topicPrefix, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.prefix + topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", topic, err)
	}

	p.log.Debug("Published event",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close flushes and closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Nop discards every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, interface{}) error { return nil }
