package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaPublisher sends events keyed by order id so that every event of an
// order lands on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

const (
	netTimeout     = 2 * time.Second
	produceTimeout = 2 * time.Second
)

// producerConfig keeps every network step short so a broker outage fails a
// send within seconds instead of holding the caller.
func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "storefront-order"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 100 * time.Millisecond
	config.Producer.Timeout = produceTimeout
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Net.DialTimeout = netTimeout
	config.Net.ReadTimeout = netTimeout
	config.Net.WriteTimeout = netTimeout
	config.Metadata.Retry.Max = 1
	return config
}

func NewKafkaPublisher(brokers []string, log *zap.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWith(producer, TopicOrderEvents, log), nil
}

func NewKafkaPublisherWith(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, log: log.With(zap.String("component", "kafka-publisher"))}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(e.OrderID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
		},
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	// SendMessage ignores ctx; the send keeps running after ctx ends and
	// its outcome is only logged.
	done := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- result{partition, offset, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err != nil {
				p.log.Warn("abandoned send failed", zap.String("order_id", e.OrderID), zap.Error(r.err))
			}
		}()
		return fmt.Errorf("send %s: %w", e.Type, ctx.Err())
	}
	if res.err != nil {
		return fmt.Errorf("send %s: %w", e.Type, res.err)
	}
	partition, offset := res.partition, res.offset

	p.log.Debug("event sent",
		zap.String("event_type", string(e.Type)),
		zap.String("order_id", e.OrderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
