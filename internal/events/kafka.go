package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// order-created-1 or order-cancelled-1
	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: eventJSON,
		Headers: []kafka.Header{
			{Key: ContractVersionHeader, Value: []byte(ContractVersion)},
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
