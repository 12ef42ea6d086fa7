package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"matchd/codec"
	"matchd/domain/book"
	"matchd/domain/series"
	"matchd/infra/outbox"
	"matchd/infra/sequence"
	"matchd/infra/wal/entry"
	"matchd/metrics"
)

// Sink receives every live indication the engine emits, series key
// included. The transport implements it to put frames on the wire;
// tests implement it to record.
type Sink interface {
	Publish(ind codec.Indication)
}

// TradePublisher is the public trade feed. kafka.TradeFeed satisfies
// it; nil disables the feed.
type TradePublisher interface {
	Publish(ctx context.Context, trade book.TradeInd) error
}

type registryEntry struct {
	Series series.ID
	Book   *book.Book
}

// Engine is the ONLY write entry point into the system. It owns the
// shared arena, the book registry, the sequencing gates and every
// durable side effect. It is single-threaded: Handle, IdleTick and the
// snapshot calls must all come from the same goroutine.
type Engine struct {
	log  zerolog.Logger
	met  *metrics.Metrics
	mem  *book.Arena
	sink Sink

	journal *entry.WAL
	outbox  *outbox.Outbox
	trades  TradePublisher

	seqGen *sequence.Sequencer
	gates  *sequence.Tracker

	entries  []registryEntry
	bySeries map[series.ID]int
	byType   map[series.ID][]int
	byClass  map[series.ID][]int
	byUnder  map[series.ID][]int

	// curSeries frames indications while a book call is on the stack.
	curSeries series.ID
	replaying bool
	snapSeq   uint64
	lastSnap  time.Time
}

// New wires all dependencies. No globals. journal, ob and trades may
// be nil to run without durability or a trade feed.
func New(
	log zerolog.Logger,
	met *metrics.Metrics,
	mem *book.Arena,
	sink Sink,
	journal *entry.WAL,
	ob *outbox.Outbox,
	trades TradePublisher,
) *Engine {
	return &Engine{
		log:      log.With().Str("component", "engine").Logger(),
		met:      met,
		mem:      mem,
		sink:     sink,
		journal:  journal,
		outbox:   ob,
		trades:   trades,
		seqGen:   sequence.New(0),
		gates:    sequence.NewTracker(),
		bySeries: make(map[series.ID]int),
		byType:   make(map[series.ID][]int),
		byClass:  make(map[series.ID][]int),
		byUnder:  make(map[series.ID][]int),
		lastSnap: time.Now(),
	}
}

// Handle runs one inbound operation end to end: sequence gate, journal
// append, dispatch, confirmation. Out-of-sequence operations are
// dropped silently per the gateway contract; the error return is for
// infrastructure faults only.
func (e *Engine) Handle(req codec.Request) error {
	if st := e.gates.Check(req.Op.Gateway, req.Op.Sequence); st != sequence.InOrder {
		e.met.OpsDropped.WithLabelValues(st.String()).Inc()
		e.log.Debug().
			Uint16("gateway", req.Op.Gateway).
			Uint16("seq", req.Op.Sequence).
			Stringer("verdict", st).
			Msg("operation dropped by sequence gate")
		return nil
	}

	seq := e.seqGen.Next()

	if e.journal != nil {
		frame, err := codec.EncodeRequest(req)
		if err != nil {
			return err
		}
		if err := e.journal.Append(entry.NewRecord(entry.RecordType(req.Msg), seq, frame)); err != nil {
			return err
		}
		e.met.JournalAppends.Inc()
	}

	// The gate advances only once the operation is journaled; a failed
	// append leaves the slot open so the gateway's resend is admitted.
	e.gates.Admit(req.Op.Gateway, req.Op.Sequence)

	e.met.OpsAdmitted.WithLabelValues(req.Msg.String()).Inc()
	e.apply(req)
	return nil
}

// apply dispatches an admitted operation. Replay uses it directly,
// bypassing gate and journal.
func (e *Engine) apply(req codec.Request) {
	switch req.Msg {
	case codec.MsgCreateBook:
		e.createBook(req.Series, req.Behaviours)

	case codec.MsgBulkDelete:
		// The only fanned-out operation: a masked series key addresses
		// every book in the group.
		for _, ent := range e.booksFor(req.Series) {
			e.curSeries = ent.Series
			ent.Book.BulkDelete(req.BulkDelete)
		}

	default:
		idx, ok := e.bySeries[req.Series]
		if !ok {
			e.met.Errors.WithLabelValues("unknown_book").Inc()
			e.log.Warn().Stringer("series", req.Series).Stringer("msg", req.Msg).
				Msg("operation for unknown book")
			break
		}
		ent := e.entries[idx]
		e.curSeries = ent.Series
		switch req.Msg {
		case codec.MsgClear:
			ent.Book.Clear()
		case codec.MsgInsert:
			ent.Book.Insert(req.Insert)
		case codec.MsgQuote:
			ent.Book.Quote(req.Quote)
		case codec.MsgDelete:
			ent.Book.Delete(req.Delete)
		case codec.MsgAmend:
			ent.Book.Amend(req.Amend)
		}
	}

	e.publish(codec.Indication{Msg: codec.MsgConfirmation, Series: req.Series, Op: req.Op})
}

func (e *Engine) createBook(s series.ID, behaviours book.Behaviours) {
	if idx, dup := e.bySeries[s]; dup {
		existing := e.entries[idx].Book.ID()
		e.curSeries = s
		if !e.replaying {
			e.log.Warn().Stringer("series", s).Uint16("book", existing).
				Msg("duplicate book creation rejected")
		}
		e.OnError(book.ErrorInd{BookID: existing, Code: book.ErrDuplicateBook})
		return
	}

	id := uint16(len(e.entries) + 1)
	b := book.New(id, behaviours, e.mem, e)
	e.register(s, b)
	e.met.Books.Set(float64(len(e.entries)))

	e.publish(codec.Indication{
		Msg: codec.MsgBookAvailable, Series: s,
		BookID: id, Behaviours: behaviours,
		Timestamp: uint64(time.Now().UnixNano()),
	})
	if !e.replaying {
		e.log.Info().Stringer("series", s).Uint16("book", id).Msg("book available")
	}
}

func (e *Engine) register(s series.ID, b *book.Book) {
	idx := len(e.entries)
	e.entries = append(e.entries, registryEntry{Series: s, Book: b})
	e.bySeries[s] = idx
	e.byType[s.MaskInstrumentType()] = append(e.byType[s.MaskInstrumentType()], idx)
	e.byClass[s.MaskInstrumentClass()] = append(e.byClass[s.MaskInstrumentClass()], idx)
	e.byUnder[s.MaskUnderlying()] = append(e.byUnder[s.MaskUnderlying()], idx)
}

// booksFor resolves a series key to books: an exact key addresses its
// one book, a masked key the whole group. Masked lookups only fire
// when the key is in that mask's canonical form, most specific first.
func (e *Engine) booksFor(s series.ID) []registryEntry {
	if idx, ok := e.bySeries[s]; ok {
		return e.entries[idx : idx+1]
	}
	gather := func(idxs []int) []registryEntry {
		out := make([]registryEntry, 0, len(idxs))
		for _, i := range idxs {
			out = append(out, e.entries[i])
		}
		return out
	}
	if s == s.MaskInstrumentClass() {
		if idxs, ok := e.byClass[s]; ok {
			return gather(idxs)
		}
	}
	if s == s.MaskInstrumentType() {
		if idxs, ok := e.byType[s]; ok {
			return gather(idxs)
		}
	}
	if s == s.MaskUnderlying() {
		if idxs, ok := e.byUnder[s]; ok {
			return gather(idxs)
		}
	}
	return nil
}

// Book returns the book registered for the exact series key, nil if
// none. Read-only use; all writes go through Handle.
func (e *Engine) Book(s series.ID) *book.Book {
	idx, ok := e.bySeries[s]
	if !ok {
		return nil
	}
	return e.entries[idx].Book
}

// IdleTick runs deferred work while no datagrams are pending: arena
// reclamation and gauge refresh.
func (e *Engine) IdleTick() {
	if n := e.mem.Reclaim(); n > 0 {
		e.met.Reclaimed.Add(float64(n))
		e.log.Debug().Int("slots", n).Msg("reclaimed")
	}
	e.met.LiveOrders.Set(float64(e.mem.Live()))
	e.met.ArenaCap.Set(float64(e.mem.Cap()))
}

// publish sends one indication to the outbox, the live sink and, for
// trades, the public feed. During replay nothing is published: every
// indication already went out the first time.
func (e *Engine) publish(ind codec.Indication) {
	if e.replaying {
		return
	}
	e.met.Indications.WithLabelValues(ind.Msg.String()).Inc()

	if e.outbox != nil {
		frame, err := codec.EncodeIndication(ind)
		if err != nil {
			e.log.Error().Err(err).Stringer("msg", ind.Msg).Msg("indication encode failed")
		} else if seq, err := e.outbox.Append(frame); err != nil {
			e.log.Error().Err(err).Stringer("msg", ind.Msg).Msg("outbox append failed")
		} else {
			e.met.OutboxDepth.Set(float64(seq))
		}
	}

	switch ind.Msg {
	case codec.MsgTradeInd:
		e.met.Trades.Inc()
		e.met.TradedVol.Add(float64(ind.Trade.Volume))
		if e.trades != nil {
			if err := e.trades.Publish(context.Background(), ind.Trade); err != nil {
				e.log.Warn().Err(err).Uint64("trade", ind.Trade.TradeID).Msg("trade feed publish failed")
			}
		}
	case codec.MsgErrorInd:
		e.met.Errors.WithLabelValues(ind.Error.Code.String()).Inc()
	}

	e.sink.Publish(ind)
}

// ---- book.Client ----
//
// Books are created with the engine as their client, so every
// indication funnels through here.

func (e *Engine) OnInsert(i book.InsertInd) {
	e.publish(codec.Indication{Msg: codec.MsgInsertInd, Series: e.curSeries, Insert: i})
}

func (e *Engine) OnDelete(i book.DeleteInd) {
	e.publish(codec.Indication{Msg: codec.MsgDeleteInd, Series: e.curSeries, Delete: i})
}

func (e *Engine) OnAmend(i book.AmendInd) {
	e.publish(codec.Indication{Msg: codec.MsgAmendInd, Series: e.curSeries, Amend: i})
}

func (e *Engine) OnTrade(i book.TradeInd) {
	e.publish(codec.Indication{Msg: codec.MsgTradeInd, Series: e.curSeries, Trade: i})
}

func (e *Engine) OnError(i book.ErrorInd) {
	e.publish(codec.Indication{Msg: codec.MsgErrorInd, Series: e.curSeries, Error: i})
}

func (e *Engine) OnClear(i book.ClearInd) {
	e.publish(codec.Indication{Msg: codec.MsgClearInd, Series: e.curSeries, Clear: i})
}
