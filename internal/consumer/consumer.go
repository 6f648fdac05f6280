package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
)

const (
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// ResultApplier settles payment intents from gateway results.
type ResultApplier interface {
	ApplyResult(ctx context.Context, res service.GatewayResult) error
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   MessageReader
	payments ResultApplier
	backoff  time.Duration
}

func NewConsumer(reader MessageReader, payments ResultApplier) *Consumer {
	return &Consumer{reader: reader, payments: payments, backoff: defaultBackoff}
}

// Run fetches payment results until ctx is cancelled. A message is committed
// only once its result is applied or it is found to be malformed; a result
// that fails to apply is retried with backoff before the next message is
// fetched, so its offset is never committed past.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	readBackoff := c.backoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info().Msg("Payment result consumer stopped")
				return nil
			}
			log.Error().Err(err).Dur("backoff", readBackoff).Msg("Error fetching message")
			if !sleep(ctx, readBackoff) {
				return nil
			}
			readBackoff = nextBackoff(readBackoff)
			continue
		}
		readBackoff = c.backoff

		applyBackoff := c.backoff
		for {
			err := c.processMessage(ctx, msg)
			if err == nil {
				break
			}
			log.Error().Err(err).Int64("offset", msg.Offset).Dur("backoff", applyBackoff).Msg("Error applying payment result, retrying")
			if !sleep(ctx, applyBackoff) {
				return nil
			}
			applyBackoff = nextBackoff(applyBackoff)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Error committing message")
		}
	}
}

// processMessage applies a single gateway result. Malformed messages are
// logged and skipped; only a failed apply is returned.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var res service.GatewayResult
	if err := json.Unmarshal(msg.Value, &res); err != nil {
		log.Error().Msgf("Error unmarshalling message at offset %d: %v", msg.Offset, err)
		return nil
	}
	if res.IntentID == "" {
		log.Error().Msgf("Payment result at offset %d has no intentId", msg.Offset)
		return nil
	}

	if err := c.payments.ApplyResult(ctx, res); err != nil {
		return err
	}
	log.Info().Str("intent_id", res.IntentID).Bool("succeeded", res.Succeeded).Msg("Payment result applied")
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
