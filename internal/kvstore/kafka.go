package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaStore uses a single-partition, log-compacted topic as a key-value store.
// Set appends a record, Remove appends a tombstone, and Get replays the partition
// to find the newest record for the key.
type KafkaStore struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
}

func NewKafkaStore(topic string, brokers ...string) *KafkaStore {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               kafka.BalancerFunc(func(kafka.Message, ...int) int { return 0 }),
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaStore{brokers: brokers, topic: topic, writer: w}
}

// CreateTopic creates the compacted topic if it does not exist yet.
func (k *KafkaStore) CreateTopic(ctx context.Context) error {
	d := kafka.DefaultDialer
	conn, err := d.DialContext(ctx, "tcp", k.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find controller: %w", err)
	}

	controllerConn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             k.topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "cleanup.policy", ConfigValue: "compact"},
		},
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	return nil
}

func (k *KafkaStore) Get(ctx context.Context, key string) (string, error) {
	first, last, err := k.offsets(ctx)
	if errors.Is(err, kafka.UnknownTopicOrPartition) || errors.Is(err, kafka.LeaderNotAvailable) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if last <= first {
		return "", ErrNotFound
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     k.topic,
		Partition: 0,
		MaxBytes:  10e6, // 10MB
	})
	defer r.Close()

	if err := r.SetOffset(first); err != nil {
		return "", fmt.Errorf("failed to seek topic: %w", err)
	}

	var (
		value string
		found bool
	)
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			return "", fmt.Errorf("error reading message: %w", err)
		}
		if string(m.Key) == key {
			found = m.Value != nil
			value = string(m.Value)
		}
		if m.Offset >= last-1 || r.Lag() == 0 {
			break
		}
	}

	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (k *KafkaStore) Set(ctx context.Context, key, value string) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("failed to publish value: %w", err)
	}
	return nil
}

func (k *KafkaStore) Remove(ctx context.Context, key string) error {
	// a nil value is a tombstone; compaction drops the key
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key: []byte(key),
	})
	if err != nil {
		return fmt.Errorf("failed to publish tombstone: %w", err)
	}
	return nil
}

func (k *KafkaStore) Close() error {
	return k.writer.Close()
}

func (k *KafkaStore) offsets(ctx context.Context) (int64, int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", k.brokers[0], k.topic, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to dial partition leader: %w", err)
	}
	defer conn.Close()

	first, last, err := conn.ReadOffsets()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read offsets: %w", err)
	}
	return first, last, nil
}
