package broadcaster

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"matchd/infra/outbox"
)

// Broadcaster drains the indication outbox into Kafka. It runs beside
// the engine, never on the matching path: the engine only appends to
// the outbox, the broadcaster owns delivery and retries.
type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      zerolog.Logger
}

// NewProducer builds the sarama producer the broadcaster expects:
// synchronous, full-replica acks, bounded retries.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	return sarama.NewSyncProducer(brokers, cfg)
}

func New(
	ob *outbox.Outbox,
	producer sarama.SyncProducer,
	topic string,
	interval time.Duration,
	log zerolog.Logger,
) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log.With().Str("component", "broadcaster").Logger(),
	}
}

// Start launches the drain loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info().Str("topic", b.topic).Dur("interval", b.interval).Msg("started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				b.DrainOnce()
			}
		}
	}()
}

// DrainOnce publishes every NEW and FAILED frame once, in sequence
// order. A frame is marked SENT before the publish attempt and ACKED
// only after the broker confirms; a broker error flips it to FAILED so
// the next scan retries it. A crash mid-publish leaves the frame SENT,
// where it is visible to operators rather than silently re-sent.
func (b *Broadcaster) DrainOnce() {
	err := b.outbox.UnsentScan(func(seq uint64, rec outbox.Record) error {
		if err := b.outbox.MarkSent(seq); err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.ByteEncoder(key),
			Value: sarama.ByteEncoder(rec.Frame),
		}

		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn().Err(err).Uint64("seq", seq).Msg("publish failed, will retry")
			return b.outbox.MarkFailed(seq)
		}

		return b.outbox.MarkAcked(seq)
	})
	if err != nil {
		b.log.Error().Err(err).Msg("outbox scan aborted")
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
