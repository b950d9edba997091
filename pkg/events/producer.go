package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Producer wraps a Kafka producer with the monitor's event publishing
type Producer struct {
	producer *kafka.Producer
	tracer   trace.Tracer
	config   ProducerConfig
}

// ProducerConfig contains configuration for the event producer
type ProducerConfig struct {
	BootstrapServers string        `yaml:"bootstrap_servers"`
	SecurityProtocol string        `yaml:"security_protocol"`
	SASLMechanism    string        `yaml:"sasl_mechanism"`
	SASLUsername     string        `yaml:"sasl_username"`
	SASLPassword     string        `yaml:"sasl_password"`
	ClientID         string        `yaml:"client_id"`
	Acks             string        `yaml:"acks"`
	Retries          int           `yaml:"retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	CompressionType  string        `yaml:"compression_type"`
}

// DefaultProducerConfig returns a production-ready default configuration
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		BootstrapServers: "localhost:9092",
		SecurityProtocol: "PLAINTEXT",
		ClientID:         "o365-monitor-producer",
		Acks:             "all",
		Retries:          3,
		RetryBackoff:     100 * time.Millisecond,
		CompressionType:  "gzip",
	}
}

// NewProducer creates a new event producer
func NewProducer(config ProducerConfig) (*Producer, error) {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":  config.BootstrapServers,
		"security.protocol":  config.SecurityProtocol,
		"client.id":          config.ClientID,
		"acks":               config.Acks,
		"retries":            config.Retries,
		"retry.backoff.ms":   int(config.RetryBackoff.Milliseconds()),
		"compression.type":   config.CompressionType,
		"enable.idempotence": true,
	}

	if config.SecurityProtocol != "PLAINTEXT" {
		kafkaConfig.SetKey("sasl.mechanism", config.SASLMechanism)
		kafkaConfig.SetKey("sasl.username", config.SASLUsername)
		kafkaConfig.SetKey("sasl.password", config.SASLPassword)
	}

	producer, err := kafka.NewProducer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		tracer:   otel.Tracer("event-producer"),
		config:   config,
	}, nil
}

// PublishFileActivity publishes one classified event, keyed by workspace so
// a workspace's activity stays ordered within a partition. The call blocks
// until the broker acknowledges delivery.
func (p *Producer) PublishFileActivity(ctx context.Context, event *FileActivityEvent) error {
	ctx, span := p.tracer.Start(ctx, "events.publish_file_activity")
	defer span.End()

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		event.TraceID = spanCtx.TraceID().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	topic := event.Topic()
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.WorkspaceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	deliveryChan := make(chan kafka.Event, 1)
	if err := p.producer.Produce(message, deliveryChan); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		m := e.(*kafka.Message)
		if m.TopicPartition.Error != nil {
			span.RecordError(m.TopicPartition.Error)
			return fmt.Errorf("message delivery failed: %w", m.TopicPartition.Error)
		}
		span.SetAttributes(
			attribute.String("kafka.topic", topic),
			attribute.String("event.type", event.Type),
			attribute.String("workspace.id", event.WorkspaceID),
		)
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Close flushes pending messages and releases the producer
func (p *Producer) Close() {
	p.producer.Flush(int((5 * time.Second).Milliseconds()))
	p.producer.Close()
}
