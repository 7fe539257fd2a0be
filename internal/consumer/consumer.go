// Package consumer wraps the two Kafka stream readers (alarms, nodes),
// handling per-partition ordered delivery, tombstone removal, and
// decode-failure isolation.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/pbrane/onms-alertmanager-bridge/internal/kafkautil"
)

// Metrics is the narrow capability both consumers need to record outcomes.
type Metrics interface {
	RecordAlarmReceived()
	RecordAlarmParsed()
	RecordAlarmParseError()
	RecordAlarmTombstone()

	RecordNodeReceived()
	RecordNodeParsed()
	RecordNodeParseError()
	RecordNodeTombstone()
}

func newKafkaReader(brokers, topic, groupID string) (*kafka.Reader, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}

	brokerList := kafkautil.ParseBrokers(brokers)
	slog.Info("initializing kafka consumer", "brokers", brokerList, "topic", topic, "group_id", groupID)

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokerList,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       kafkautil.MinBytes,
		MaxBytes:       kafkautil.MaxBytes,
		MaxWait:        kafkautil.ReadTimeout,
		CommitInterval: kafkautil.CommitInterval,
		StartOffset:    kafka.FirstOffset,
	}), nil
}

// AlarmSink is the narrow capability AlarmConsumer needs: ActiveAlarmTable's
// Upsert and OnTombstone.
type AlarmSink[T any] interface {
	Upsert(a T)
	OnTombstone(reductionKey string)
}

// AlarmConsumer drains the alarms topic and dispatches decoded records or
// tombstones to an AlarmSink (ActiveAlarmTable in production). Decode is
// injected per spec.md's wire-decoding boundary: this package never knows
// the upstream encoding, only that a non-tombstone value decodes to a T.
type AlarmConsumer[T any] struct {
	r       *kafka.Reader
	topic   string
	decode  func([]byte) (T, error)
	sink    AlarmSink[T]
	metrics Metrics
}

// NewAlarmConsumer creates an AlarmConsumer for alarm records of type T.
func NewAlarmConsumer[T any](brokers, topic, groupID string, decode func([]byte) (T, error), sink AlarmSink[T], metrics Metrics) (*AlarmConsumer[T], error) {
	r, err := newKafkaReader(brokers, topic, groupID)
	if err != nil {
		return nil, err
	}
	return &AlarmConsumer[T]{r: r, topic: topic, decode: decode, sink: sink, metrics: metrics}, nil
}

// Run drains the alarms stream until ctx is cancelled. Decode failures are
// counted and the record is dropped without retry, matching the
// compacted-log idempotent-replay model: a later record for the same key
// will arrive and correct the cache.
func (c *AlarmConsumer[T]) Run(ctx context.Context) error {
	slog.Info("starting alarm consume loop", "topic", c.topic)
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("alarm consume loop stopped")
				return nil
			}
			slog.Error("failed to read alarm message", "error", err)
			continue
		}

		c.metrics.RecordAlarmReceived()

		key := string(msg.Key)
		if len(msg.Value) == 0 {
			c.metrics.RecordAlarmTombstone()
			c.sink.OnTombstone(key)
			continue
		}

		record, err := c.decode(msg.Value)
		if err != nil {
			c.metrics.RecordAlarmParseError()
			slog.Warn("failed to decode alarm record, dropping", "key", key, "error", err)
			continue
		}
		c.metrics.RecordAlarmParsed()
		c.sink.Upsert(record)
	}
}

// Close releases the underlying Kafka reader.
func (c *AlarmConsumer[T]) Close() error {
	slog.Info("closing kafka consumer", "topic", c.topic)
	return c.r.Close()
}

// NodeSink is the narrow capability NodeConsumer needs: NodeCache's Put and
// Remove.
type NodeSink[T any] interface {
	Put(n T)
	Remove(key string)
}

// NodeConsumer drains the nodes topic and dispatches decoded records or
// tombstones to a NodeSink (NodeCache in production).
type NodeConsumer[T any] struct {
	r       *kafka.Reader
	topic   string
	decode  func([]byte) (T, error)
	sink    NodeSink[T]
	metrics Metrics
}

// NewNodeConsumer creates a NodeConsumer for node records of type T.
func NewNodeConsumer[T any](brokers, topic, groupID string, decode func([]byte) (T, error), sink NodeSink[T], metrics Metrics) (*NodeConsumer[T], error) {
	r, err := newKafkaReader(brokers, topic, groupID)
	if err != nil {
		return nil, err
	}
	return &NodeConsumer[T]{r: r, topic: topic, decode: decode, sink: sink, metrics: metrics}, nil
}

// Run drains the nodes stream until ctx is cancelled, mirroring
// AlarmConsumer.Run's tombstone and decode-failure handling.
func (c *NodeConsumer[T]) Run(ctx context.Context) error {
	slog.Info("starting node consume loop", "topic", c.topic)
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("node consume loop stopped")
				return nil
			}
			slog.Error("failed to read node message", "error", err)
			continue
		}

		c.metrics.RecordNodeReceived()

		key := string(msg.Key)
		if len(msg.Value) == 0 {
			c.metrics.RecordNodeTombstone()
			c.sink.Remove(key)
			continue
		}

		record, err := c.decode(msg.Value)
		if err != nil {
			c.metrics.RecordNodeParseError()
			slog.Warn("failed to decode node record, dropping", "key", key, "error", err)
			continue
		}
		c.metrics.RecordNodeParsed()
		c.sink.Put(record)
	}
}

// Close releases the underlying Kafka reader.
func (c *NodeConsumer[T]) Close() error {
	slog.Info("closing kafka consumer", "topic", c.topic)
	return c.r.Close()
}
