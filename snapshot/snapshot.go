// Package snapshot persists the full engine state: every book, its
// resting orders in priority order, the id counters and the gateway
// sequencing gates. A snapshot plus the journal records after it
// rebuild the engine exactly.
package snapshot

import (
	"time"

	"matchd/domain/book"
	"matchd/domain/series"
)

type Snapshot struct {
	Seq     uint64
	Created time.Time
	Books   []BookEntry
	Gates   map[uint16]uint16
}

type BookEntry struct {
	Series     series.ID
	BookID     uint16
	Behaviours book.Behaviours
	OrderSeq   uint64
	TradeSeq   uint64
	Orders     []OrderEntry
	Quotes     []QuoteEntry
}

// QuoteEntry records the order ids a book tracks for one client's
// standing quote. Without them a reloaded book would diff new quotes
// against nothing and leave the old levels resting.
type QuoteEntry struct {
	ClientID uint16
	Bids     []uint64
	Asks     []uint64
}

// OrderEntry records one resting order. Entries are stored in
// EachResting order so reloading preserves queue priority.
type OrderEntry struct {
	ClientID uint16
	OrderID  uint64
	Flags    book.OrderFlags
	Price    int64
	Volume   int64
	Tag      book.VarText
}
