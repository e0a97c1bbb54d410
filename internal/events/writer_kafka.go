package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// KafkaWriter delivers events to the notification pipeline through kafka.
type KafkaWriter struct {
	producer sarama.SyncProducer
}

func NewKafkaWriter(brokers []string, clientID string) (*KafkaWriter, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &KafkaWriter{producer: producer}, nil
}

func (k *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(e.ID()),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

func (k *KafkaWriter) Close(_ context.Context) error {
	return k.producer.Close()
}
