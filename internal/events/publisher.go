// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"accountability-call-service/internal/observability/metrics"
)

// Publisher publishes transcript and agent-state events to separate Kafka topics.
type Publisher struct {
	writerPartial    *kafka.Writer
	writerFinal      *kafka.Writer
	writerAgentState *kafka.Writer
	principal        string
	topicPartial     string
	topicFinal       string
	topicAgentState  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicPartial    string
	TopicFinal      string
	TopicAgentState string
	Principal       string
	Enabled         bool
	Metrics         *metrics.Metrics
}

// New creates a Kafka event publisher. With Kafka disabled or no brokers
// configured the publisher only logs.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: metrics.DefaultMetrics,
		}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicPartial:    cfg.TopicPartial,
			topicFinal:      cfg.TopicFinal,
			topicAgentState: cfg.TopicAgentState,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeout for DNS resolution inside Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicAgentState", cfg.TopicAgentState).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerPartial:    newWriter(cfg.TopicPartial),
		writerFinal:      newWriter(cfg.TopicFinal),
		writerAgentState: newWriter(cfg.TopicAgentState),
		principal:        cfg.Principal,
		topicPartial:     cfg.TopicPartial,
		topicFinal:       cfg.TopicFinal,
		topicAgentState:  cfg.TopicAgentState,
		enabled:          true,
		metrics:          m,
	}
}

// Enabled reports whether events are written to Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishPartial publishes a partial transcript event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, "partial", key, event)
}

// PublishFinal publishes a final transcript event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", key, event)
}

// PublishAgentState publishes an agent state change to the agent-state topic.
func (p *Publisher) PublishAgentState(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerAgentState, p.topicAgentState, "agent_state", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"partial":     p.writerPartial,
		"final":       p.writerFinal,
		"agent_state": p.writerAgentState,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
