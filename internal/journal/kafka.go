// Package journal replicates the chat change feed to Kafka for downstream
// consumers (analytics, archival). The journal is best-effort: chat must
// keep working when the brokers are unreachable.
package journal

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/config"
	"github.com/spec-kit/support-chat-service/internal/events"
)

// Journal produces change-feed events onto one topic, keyed by session id
// so per-session ordering survives partitioning. Feeding it from the
// dispatcher is the worker pump's job; Record itself blocks on the broker.
type Journal struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// New connects the producer. Returns nil when no brokers are configured.
func New(cfg config.KafkaConfig, logger *zap.Logger) (*Journal, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	logger.Info("kafka journal enabled", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return &Journal{producer: producer, topic: cfg.Topic, logger: logger}, nil
}

// Record produces one event. Failures are logged, not propagated; the
// store remains the source of truth.
func (j *Journal) Record(event events.Event) {
	if j == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		j.logger.Warn("journal marshal failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: j.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(value),
	}
	if _, _, err := j.producer.SendMessage(msg); err != nil {
		j.logger.Warn("journal produce failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// Close releases the producer.
func (j *Journal) Close() error {
	if j == nil || j.producer == nil {
		return nil
	}
	return j.producer.Close()
}
