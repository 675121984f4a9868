package kafka

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"github.com/tickboard/board/entities"
	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type Client struct {
	kcl KafkaClient
}

func NewClient(kafkaClient KafkaClient) *Client {
	return &Client{
		kcl: kafkaClient,
	}
}

// PublishTick produces one record per tick event and waits for the broker acknowledgement.
func (kc *Client) PublishTick(ctx context.Context, event entities.TickEvent) error {
	record, err := createTickRecord(event)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
		result <- err
	})

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("producing tick record [%d]: %w", event.ID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tick record [%d]: %w", event.ID, ctx.Err())
	}
}

func createTickRecord(event entities.TickEvent) (*kgo.Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshalling tick event to json: %w", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, event.ID)

	return &kgo.Record{
		Key:   key,
		Value: payload,
	}, nil
}
