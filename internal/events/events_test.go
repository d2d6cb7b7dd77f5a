package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaPublisher_SendsJSONKeyedByOrder(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisherWith(mp, TopicOrderEvents, zap.NewNop())

	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e OrderEvent
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != OrderPlaced || e.OrderID != "o_1" || e.TotalCents != 4990 {
			return fmt.Errorf("unexpected event %+v", e)
		}
		return nil
	})

	err := p.Publish(context.Background(), OrderEvent{
		Type: OrderPlaced, OrderID: "o_1", UserID: "u_1", Status: "pending",
		TotalCents: 4990, Items: 1, At: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_PropagatesSendError(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisherWith(mp, TopicOrderEvents, zap.NewNop())

	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.Publish(context.Background(), OrderEvent{Type: OrderStatusChanged, OrderID: "o_2"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisherWith(mp, TopicOrderEvents, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Publish(ctx, OrderEvent{OrderID: "o_3"}), context.Canceled)
	require.NoError(t, p.Close())
}

type stalledProducer struct {
	*mocks.SyncProducer
	release chan struct{}
}

func (s *stalledProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	<-s.release
	return 0, 0, sarama.ErrRequestTimedOut
}

func TestKafkaPublisher_ReturnsWhenContextEndsDuringSend(t *testing.T) {
	sp := &stalledProducer{SyncProducer: mocks.NewSyncProducer(t, nil), release: make(chan struct{})}
	p := NewKafkaPublisherWith(sp, TopicOrderEvents, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, OrderEvent{Type: OrderPlaced, OrderID: "o_4"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)

	close(sp.release)
	require.NoError(t, p.Close())
}

func TestProducerConfig_BoundsNetworkWaits(t *testing.T) {
	c := producerConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, sarama.WaitForAll, c.Producer.RequiredAcks)
	require.True(t, c.Producer.Idempotent)
	require.LessOrEqual(t, c.Producer.Timeout, 2*time.Second)
	require.LessOrEqual(t, c.Net.DialTimeout, 2*time.Second)
	require.LessOrEqual(t, c.Net.WriteTimeout, 2*time.Second)
	require.LessOrEqual(t, c.Net.ReadTimeout, 2*time.Second)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), OrderEvent{OrderID: "a"}))
	r.Err = errors.New("down")
	require.Error(t, r.Publish(context.Background(), OrderEvent{OrderID: "b"}))
	require.Len(t, r.Events(), 1)

	require.NoError(t, LogPublisher{}.Publish(context.Background(), OrderEvent{}))
}
