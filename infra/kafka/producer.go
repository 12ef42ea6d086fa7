// Package kafka publishes the public trade feed. Unlike the outbox
// broadcaster this path is fire-and-forget: trades are re-derivable
// from the journal, so losing one on a broker outage is acceptable and
// the matching path must never block on it.
package kafka

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/segmentio/kafka-go"

	"matchd/domain/book"
	"matchd/infra/wal"
)

// TradeEvent is the feed payload. Field names are part of the public
// contract; do not rename.
type TradeEvent struct {
	V               int    `json:"v"`
	Book            uint16 `json:"book"`
	TradeID         uint64 `json:"trade_id"`
	Price           int64  `json:"price"`
	Volume          int64  `json:"volume"`
	AggressorOrder  uint64 `json:"aggressor_order"`
	PassiveOrder    uint64 `json:"passive_order"`
	AggressorClient uint16 `json:"aggressor_client"`
	PassiveClient   uint16 `json:"passive_client"`
	AggressorIsBid  bool   `json:"aggressor_is_bid"`
	Time            int64  `json:"time"`
}

type TradeFeed struct {
	writer *kafka.Writer
	enc    wal.Serializer
}

func NewTradeFeed(brokers []string, topic string, enc wal.Serializer) *TradeFeed {
	if enc == nil {
		enc = wal.JSONSerializer{}
	}
	return &TradeFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true, // keep off the matching path
			BatchTimeout: 10 * time.Millisecond,
		},
		enc: enc,
	}
}

// Publish keys by book id so per-book trade order is preserved within
// a partition.
func (f *TradeFeed) Publish(ctx context.Context, trade book.TradeInd) error {
	value, err := f.enc.Encode(TradeEvent{
		V:               1,
		Book:            trade.BookID,
		TradeID:         trade.TradeID,
		Price:           trade.Price,
		Volume:          trade.Volume,
		AggressorOrder:  trade.AggressorOrderID,
		PassiveOrder:    trade.PassiveOrderID,
		AggressorClient: trade.AggressorClient,
		PassiveClient:   trade.PassiveClient,
		AggressorIsBid:  trade.AggressorIsBid,
		Time:            time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	key := make([]byte, 2)
	binary.BigEndian.PutUint16(key, trade.BookID)

	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (f *TradeFeed) Close() error {
	return f.writer.Close()
}
