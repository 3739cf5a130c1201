package otp

import (
	"context"
	"encoding/json"
	"fmt"

	"finboard/internal/client"
	"finboard/internal/config"
)

// KafkaNotifier publishes deliveries to the codes topic for the downstream
// mailer. The payload carries the raw code; the topic is internal.
type KafkaNotifier struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaNotifier(producer *client.KafkaProducer, cfg *config.Config) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    cfg.Kafka.OTPTopic,
	}
}

func (n *KafkaNotifier) Send(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	headers := map[string]string{
		"purpose": string(d.Purpose),
	}

	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(d.UserID), payload, headers); err != nil {
		return fmt.Errorf("failed to publish delivery: %w", err)
	}

	return nil
}
