package book

// InsertReq places a new order.
type InsertReq struct {
	ClientID uint16
	Flags    OrderFlags
	Price    int64
	Volume   int64
	Tag      VarText
}

// QuoteLevel is one (price, volume) rung of a quote.
type QuoteLevel struct {
	Price  int64
	Volume int64
}

// QuoteReq replaces a client's standing quote on both sides.
type QuoteReq struct {
	ClientID uint16
	Tag      VarText
	Bids     []QuoteLevel
	Asks     []QuoteLevel
}

// DeleteReq removes one order by id.
type DeleteReq struct {
	ClientID uint16
	OrderID  uint64
}

// BulkDeleteReq removes every order of a client whose tag matches
// exactly and whose side intersects the request flags.
type BulkDeleteReq struct {
	ClientID uint16
	Flags    OrderFlags
	Tag      VarText
}

// AmendReq changes price, volume or tag of one order.
type AmendReq struct {
	ClientID    uint16
	OrderID     uint64
	Price       int64
	Volume      int64
	VolumeDelta bool
	Tag         VarText
}

// Book is one instrument's matching state. It owns no order memory;
// all orders live in the injected shared arena and the book holds
// slot indices only.
type Book struct {
	behaviours Behaviours
	id         uint16
	mem        *Arena
	client     Client

	orderSeq uint64
	tradeSeq uint64

	bids ladder
	asks ladder

	quotes map[uint16]*clientQuotes
}

type clientQuotes struct {
	bids []uint64
	asks []uint64
}

// New binds a book to the shared arena and indication sink. Order and
// trade ids minted by the book carry id in their high 16 bits.
func New(id uint16, behaviours Behaviours, mem *Arena, client Client) *Book {
	return &Book{
		behaviours: behaviours,
		id:         id,
		mem:        mem,
		client:     client,
		quotes:     make(map[uint16]*clientQuotes),
	}
}

// ID returns the book id.
func (b *Book) ID() uint16 { return b.id }

// Behaviours returns the flags the book was created with.
func (b *Book) Behaviours() Behaviours { return b.behaviours }

func (b *Book) nextOrderID() uint64 {
	b.orderSeq = (b.orderSeq + 1) & counterMask
	return uint64(b.id)<<48 | b.orderSeq
}

func (b *Book) nextTradeID() uint64 {
	b.tradeSeq = (b.tradeSeq + 1) & counterMask
	return uint64(b.id)<<48 | b.tradeSeq
}

// Insert accepts a new order: emits the acceptance, matches it
// against the opposing side and rests any non-FAK residual.
func (b *Book) Insert(req InsertReq) {
	orderID := b.nextOrderID()
	b.client.OnInsert(InsertInd{
		BookID:   b.id,
		ClientID: req.ClientID,
		OrderID:  orderID,
		Flags:    req.Flags,
		Price:    req.Price,
		Volume:   req.Volume,
	})
	b.insertSide(orderID, req.ClientID, req.Price, req.Volume, req.Flags, req.Tag)
}

func (b *Book) insertSide(orderID uint64, clientID uint16, price, volume int64, flags OrderFlags, tag VarText) Slot {
	if flags&IsBid != 0 {
		return b.processInsertSide(orderID, clientID, price, volume, flags, tag, &b.bids, &b.asks, bidLess)
	}
	return b.processInsertSide(orderID, clientID, price, volume, flags, tag, &b.asks, &b.bids, askLess)
}

// processInsertSide is the core match-then-rest algorithm. The
// supporting ladder is the incoming order's own side, the opposing
// ladder the one it trades against. less is the side's aggression
// comparator, so one body serves both directions.
func (b *Book) processInsertSide(orderID uint64, clientID uint16, price, volume int64, flags OrderFlags, tag VarText,
	supporting, opposing *ladder, less lessAggressive) Slot {

	remaining := volume

	for opposing.Len() > 0 && remaining > 0 {
		lvl := opposing.Best()
		restingPrice := b.mem.At(lvl.Lead).Price
		if !less(restingPrice, price) && restingPrice != price {
			break
		}

		for lvl.Lead != NilSlot && remaining > 0 {
			s := lvl.Lead
			o := b.mem.At(s)

			if o.OrderID == 0 {
				// Ghost left behind by a delete or amend; its
				// reclamation was deferred, so detach it for the
				// idle pass instead of freeing inline.
				lvl.Lead = o.Next
				b.mem.DropGhost(s)
				continue
			}

			match := min64(o.Volume, remaining)
			if match > 0 {
				remaining -= match
				o.Volume -= match
				b.client.OnTrade(TradeInd{
					BookID:           b.id,
					TradeID:          b.nextTradeID(),
					AggressorClient:  clientID,
					PassiveClient:    o.ClientID,
					AggressorOrderID: orderID,
					PassiveOrderID:   o.OrderID,
					Price:            o.Price,
					Volume:           match,
					AggressorIsBid:   flags&IsBid != 0,
				})
			}

			if o.Volume == 0 {
				// The one synchronous free: the head pointer and the
				// slot must advance in lock-step to keep the chain
				// walk correct.
				b.processDelete(s)
				lvl.Lead = o.Next
				b.mem.FreeNow(s)
			}
		}

		if lvl.Lead == NilSlot {
			opposing.PopBest(b.mem)
		}
	}

	if flags&IsFAK == 0 && remaining > 0 {
		return b.rest(orderID, clientID, price, remaining, flags, tag, supporting, less)
	}

	// FAK residual or fully consumed: nothing rests, signal with a
	// delete for the incoming id.
	b.client.OnDelete(DeleteInd{BookID: b.id, ClientID: clientID, OrderID: orderID})
	return NilSlot
}

// rest places the residual on the supporting ladder: reuse an exact
// level (and its ghost head slot, if retired in place), append to the
// level tail, or open a new level at the insertion point.
func (b *Book) rest(orderID uint64, clientID uint16, price, volume int64, flags OrderFlags, tag VarText,
	supporting *ladder, less lessAggressive) Slot {

	idx, exact := supporting.findInsertion(b.mem, price, less)
	if exact {
		lvl := supporting.At(idx)
		if b.mem.At(lvl.Lead).OrderID == 0 {
			b.mem.Bind(lvl.Lead, orderID, clientID, price, volume, flags, tag)
			return lvl.Lead
		}
		s := b.mem.Allocate(orderID, clientID, price, volume, flags, tag)
		b.mem.At(lvl.End).Next = s
		lvl.End = s
		return s
	}
	s := b.mem.Allocate(orderID, clientID, price, volume, flags, tag)
	b.mem.At(s).Next = NilSlot
	supporting.insertAt(idx, Level{Lead: s, End: s})
	return s
}

// processDelete retires the order at s in place: delete indication,
// id index entry removed, volume zeroed. The slot stays chained as a
// ghost until the matcher walks past it or its level is dropped.
func (b *Book) processDelete(s Slot) {
	o := b.mem.At(s)
	b.client.OnDelete(DeleteInd{BookID: b.id, ClientID: o.ClientID, OrderID: o.OrderID})
	b.mem.Retire(s)
}

// Delete removes one order after ownership checks.
func (b *Book) Delete(req DeleteReq) {
	s, ok := b.resolve(req.ClientID, req.OrderID)
	if !ok {
		return
	}
	b.processDelete(s)
}

// Amend applies an amend after ownership checks.
func (b *Book) Amend(req AmendReq) {
	s, ok := b.resolve(req.ClientID, req.OrderID)
	if !ok {
		return
	}
	b.processAmend(s, req.Price, req.Volume, req.VolumeDelta, req.Tag)
}

// resolve looks an order up for a client, reporting UNKNOWN_ORDER,
// NOT_CLIENT_ORDER or an internal fault through the error indication.
func (b *Book) resolve(clientID uint16, orderID uint64) (Slot, bool) {
	s, ok := b.mem.Lookup(orderID)
	if !ok {
		b.client.OnError(ErrorInd{BookID: b.id, ClientID: clientID, OrderID: orderID, Code: ErrUnknownOrder})
		return NilSlot, false
	}
	if !b.mem.Valid(s) {
		// Index points outside the arena: invariant violation, but
		// recoverable at the operation level.
		b.client.OnError(ErrorInd{BookID: b.id, ClientID: clientID, OrderID: orderID, Code: ErrInternal})
		return NilSlot, false
	}
	if b.mem.At(s).ClientID != clientID {
		b.client.OnError(ErrorInd{BookID: b.id, ClientID: clientID, OrderID: orderID, Code: ErrNotClientOrder})
		return NilSlot, false
	}
	return s, true
}

// processAmend implements the queue-position rule. Raising volume or
// moving price forfeits time priority: the order is retired and
// reinserted under a fresh id, rematching like any insert. A pure
// reduction keeps its place; whether it keeps its id depends on the
// book's AmendSameQPSameID behaviour. Returns the order's effective
// id after the amend, 0 if it no longer rests.
func (b *Book) processAmend(s Slot, newPrice, newVolume int64, volumeDelta bool, tag VarText) uint64 {
	o := b.mem.At(s)

	adjVolume := newVolume
	if volumeDelta {
		adjVolume = o.Volume + newVolume
	}
	if adjVolume <= 0 {
		b.processDelete(s)
		return 0
	}

	qpLoss := adjVolume > o.Volume
	changePrice := newPrice != 0 && newPrice != o.Price
	price := o.Price
	if changePrice {
		price = newPrice
	}
	resetID := qpLoss || changePrice || b.behaviours&AmendSameQPSameID == 0

	newID := b.nextOrderID()
	effective := o.OrderID
	if resetID {
		effective = newID
	}

	b.client.OnAmend(AmendInd{
		BookID:      b.id,
		ClientID:    o.ClientID,
		OrigOrderID: o.OrderID,
		NewOrderID:  effective,
		Price:       price,
		Volume:      newVolume,
		VolumeDelta: volumeDelta,
	})

	if qpLoss || changePrice {
		clientID := o.ClientID
		side := o.Flags & (IsBid | IsAsk)
		b.processDelete(s)
		if b.insertSide(newID, clientID, price, adjVolume, side, tag) == NilSlot {
			return 0
		}
		return newID
	}

	o.Volume = adjVolume
	b.mem.Extra(s).VarText = tag
	if resetID {
		b.mem.Rekey(s, o.OrderID, newID)
		o.OrderID = newID
	}
	return effective
}

// Quote full-replaces the client's standing quote, diffing each side
// independently against the remembered order ids.
func (b *Book) Quote(req QuoteReq) {
	q := b.quotes[req.ClientID]
	if q == nil {
		q = &clientQuotes{}
		b.quotes[req.ClientID] = q
	}
	q.bids = b.processQuotes(q.bids, req.ClientID, IsBid, req.Tag, req.Bids)
	q.asks = b.processQuotes(q.asks, req.ClientID, IsAsk, req.Tag, req.Asks)
}

// processQuotes pairs live tracked ids with the new levels by
// position: matched positions are amended to the new absolute terms,
// surplus ids deleted, surplus levels inserted as fresh orders. Stale
// ids are pruned as encountered. Returns the updated id list.
func (b *Book) processQuotes(cur []uint64, clientID uint16, side OrderFlags, tag VarText, levels []QuoteLevel) []uint64 {
	kept := make([]uint64, 0, len(levels))
	cnt := 0
	for _, id := range cur {
		s, ok := b.mem.Lookup(id)
		if !ok {
			continue
		}
		if cnt < len(levels) {
			lv := levels[cnt]
			if eff := b.processAmend(s, lv.Price, lv.Volume, false, tag); eff != 0 {
				kept = append(kept, eff)
			}
		} else {
			b.processDelete(s)
		}
		cnt++
	}

	for cnt < len(levels) {
		lv := levels[cnt]
		cnt++
		orderID := b.nextOrderID()
		b.client.OnInsert(InsertInd{
			BookID:   b.id,
			ClientID: clientID,
			OrderID:  orderID,
			Flags:    side,
			Price:    lv.Price,
			Volume:   lv.Volume,
		})
		b.insertSide(orderID, clientID, lv.Price, lv.Volume, side, tag)
		kept = append(kept, orderID)
	}
	return kept
}

// BulkDelete retires every order of the client in this book whose tag
// matches exactly and whose side intersects the request flags (no
// side bit set matches both sides). Stale ids are pruned; partial
// matches are skipped silently.
func (b *Book) BulkDelete(req BulkDeleteReq) {
	ids, ok := b.mem.OrdersOf(req.ClientID)
	if !ok || len(ids) == 0 {
		b.client.OnError(ErrorInd{BookID: b.id, ClientID: req.ClientID, Code: ErrClientHasNoOrders})
		return
	}

	kept := make([]uint64, 0, len(ids))
	for _, id := range ids {
		s, live := b.mem.Lookup(id)
		if !live {
			continue // stale, prune
		}
		if BookOf(id) != b.id {
			kept = append(kept, id) // another book's order
			continue
		}
		o := b.mem.At(s)
		if b.mem.Extra(s).VarText == req.Tag && sideMatch(o.Flags, req.Flags) {
			b.processDelete(s)
			continue
		}
		kept = append(kept, id)
	}
	b.mem.SetOrdersOf(req.ClientID, kept)
}

func sideMatch(have, want OrderFlags) bool {
	m := want & (IsBid | IsAsk)
	if m == 0 {
		return true
	}
	return have&m != 0
}

// Clear retires every resting order on both sides, queues all level
// chains for reclamation and announces the wipe.
func (b *Book) Clear() {
	clearSide := func(l *ladder) {
		for i := range l.levels {
			for s := l.levels[i].Lead; s != NilSlot; s = b.mem.At(s).Next {
				if b.mem.At(s).OrderID != 0 {
					b.processDelete(s)
				}
			}
			b.mem.DropChain(l.levels[i].Lead)
		}
		l.levels = l.levels[:0]
	}
	clearSide(&b.bids)
	clearSide(&b.asks)
	b.quotes = make(map[uint16]*clientQuotes)
	b.client.OnClear(ClearInd{BookID: b.id})
}

// EachResting visits every live resting order, bids first, levels
// from most to least aggressive, orders in arrival order. Used by the
// snapshotter.
func (b *Book) EachResting(visit func(o *Order, tag VarText)) {
	walk := func(l *ladder) {
		l.each(func(lvl *Level) bool {
			for s := lvl.Lead; s != NilSlot; s = b.mem.At(s).Next {
				o := b.mem.At(s)
				if o.OrderID != 0 {
					visit(o, b.mem.Extra(s).VarText)
				}
			}
			return true
		})
	}
	walk(&b.bids)
	walk(&b.asks)
}

// EachQuote visits every client with a standing quote and the order
// ids tracked for each side. Used by the snapshotter; the quote diff
// is stateful, so resting orders alone do not describe a book.
func (b *Book) EachQuote(visit func(clientID uint16, bids, asks []uint64)) {
	for clientID, q := range b.quotes {
		visit(clientID, q.bids, q.asks)
	}
}

// RestoreQuote reinstates a client's tracked quote ids as recorded.
// The ids must refer to orders already restored into this book.
func (b *Book) RestoreQuote(clientID uint16, bids, asks []uint64) {
	b.quotes[clientID] = &clientQuotes{
		bids: append([]uint64(nil), bids...),
		asks: append([]uint64(nil), asks...),
	}
}

// Restore rests an order exactly as recorded, without matching and
// without indications. Snapshot loading feeds orders in EachResting
// order so queue priority is preserved.
func (b *Book) Restore(clientID uint16, orderID uint64, flags OrderFlags, price, volume int64, tag VarText) {
	supporting, less := &b.asks, lessAggressive(askLess)
	if flags&IsBid != 0 {
		supporting, less = &b.bids, bidLess
	}
	b.rest(orderID, clientID, price, volume, flags, tag, supporting, less)
}

// Counters exposes the id counters for snapshotting.
func (b *Book) Counters() (orderSeq, tradeSeq uint64) { return b.orderSeq, b.tradeSeq }

// SetCounters restores the id counters from a snapshot.
func (b *Book) SetCounters(orderSeq, tradeSeq uint64) {
	b.orderSeq = orderSeq
	b.tradeSeq = tradeSeq
}

// Depth returns the number of price levels on one side.
func (b *Book) Depth(side OrderFlags) int {
	if side&IsBid != 0 {
		return b.bids.Len()
	}
	return b.asks.Len()
}

// VolumeAt sums live volume at an exact price on one side.
func (b *Book) VolumeAt(side OrderFlags, price int64) int64 {
	l := &b.asks
	less := lessAggressive(askLess)
	if side&IsBid != 0 {
		l, less = &b.bids, bidLess
	}
	idx, exact := l.findInsertion(b.mem, price, less)
	if !exact {
		return 0
	}
	var total int64
	for s := l.At(idx).Lead; s != NilSlot; s = b.mem.At(s).Next {
		total += b.mem.At(s).Volume
	}
	return total
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
