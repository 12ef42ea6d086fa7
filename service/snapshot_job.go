package service

import (
	"sort"
	"time"

	"matchd/domain/book"
	"matchd/snapshot"
)

// MaybeSnapshot cuts a snapshot when interval has elapsed since the
// last one. Called from the engine goroutine on idle ticks, so the
// walk never races with matching.
func (e *Engine) MaybeSnapshot(w *snapshot.Writer, interval time.Duration) error {
	if interval <= 0 || time.Since(e.lastSnap) < interval {
		return nil
	}
	return e.WriteSnapshot(w)
}

// WriteSnapshot persists the full engine state and then prunes the
// durable logs: journal segments fully covered by the snapshot and
// acked outbox records.
func (e *Engine) WriteSnapshot(w *snapshot.Writer) error {
	s := e.buildSnapshot()
	if err := w.Write(s); err != nil {
		return err
	}

	e.snapSeq = s.Seq
	e.lastSnap = time.Now()
	e.met.SnapshotSeq.Set(float64(s.Seq))

	if e.journal != nil {
		if err := e.journal.TruncateBefore(s.Seq); err != nil {
			e.log.Warn().Err(err).Msg("journal truncation failed")
		}
	}
	if e.outbox != nil {
		if err := e.outbox.TruncateAckedUpTo(e.outbox.LastSeq()); err != nil {
			e.log.Warn().Err(err).Msg("outbox truncation failed")
		}
	}

	e.log.Info().Uint64("seq", s.Seq).Int("books", len(s.Books)).Msg("snapshot written")
	return nil
}

func (e *Engine) buildSnapshot() *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		Seq:     e.seqGen.Current(),
		Created: time.Now(),
		Gates:   e.gates.Gateways(),
	}

	for _, ent := range e.entries {
		orderSeq, tradeSeq := ent.Book.Counters()
		be := snapshot.BookEntry{
			Series:     ent.Series,
			BookID:     ent.Book.ID(),
			Behaviours: ent.Book.Behaviours(),
			OrderSeq:   orderSeq,
			TradeSeq:   tradeSeq,
		}
		ent.Book.EachResting(func(o *book.Order, tag book.VarText) {
			be.Orders = append(be.Orders, snapshot.OrderEntry{
				ClientID: o.ClientID,
				OrderID:  o.OrderID,
				Flags:    o.Flags,
				Price:    o.Price,
				Volume:   o.Volume,
				Tag:      tag,
			})
		})
		ent.Book.EachQuote(func(clientID uint16, bids, asks []uint64) {
			be.Quotes = append(be.Quotes, snapshot.QuoteEntry{
				ClientID: clientID,
				Bids:     append([]uint64(nil), bids...),
				Asks:     append([]uint64(nil), asks...),
			})
		})
		sort.Slice(be.Quotes, func(i, j int) bool {
			return be.Quotes[i].ClientID < be.Quotes[j].ClientID
		})
		s.Books = append(s.Books, be)
	}
	return s
}
