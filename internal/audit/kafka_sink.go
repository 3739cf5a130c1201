package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/models"
)

// kafkaSink streams entries to the activity topic for downstream consumers
// (fraud screening, data warehouse loaders).
type kafkaSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaSink(producer *client.KafkaProducer, cfg *config.Config) Sink {
	return &kafkaSink{
		producer: producer,
		topic:    cfg.Kafka.ActivityTopic,
	}
}

func (s *kafkaSink) Name() string {
	return "kafka"
}

func (s *kafkaSink) Write(ctx context.Context, entry *models.ActivityEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode activity entry: %w", err)
	}

	headers := map[string]string{
		"action": entry.Action,
	}

	return s.producer.ProduceMessage(ctx, s.topic, []byte(entry.UserID), payload, headers)
}
