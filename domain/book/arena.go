package book

// Arena is the shared order memory for every book hosted by one
// engine: the order pool, the parallel extra-info pool, the free
// list, the dropped-chain queue awaiting reclamation, and the two
// secondary indices (order id -> slot, client id -> order ids).
//
// The arena is the single source of truth for order existence. It is
// owned by the engine and injected into every Book; books only hold
// slot indices into it.
type Arena struct {
	orders  []Order
	extra   []ExtraInfo
	free    []Slot
	dropped []Slot

	byOrder  map[uint64]Slot
	byClient map[uint16][]uint64

	reclaimed uint64
	grown     int
}

// NewArena allocates a pool of orderCap slots. Slot 0 is reserved as
// the nil sentinel and never handed out.
func NewArena(orderCap, clientCap int) *Arena {
	if orderCap < 1 {
		orderCap = 1
	}
	a := &Arena{
		orders:   make([]Order, orderCap+1),
		extra:    make([]ExtraInfo, orderCap+1),
		free:     make([]Slot, 0, orderCap),
		dropped:  make([]Slot, 0, 64),
		byOrder:  make(map[uint64]Slot, orderCap),
		byClient: make(map[uint16][]uint64, clientCap),
	}
	for i := orderCap; i >= 1; i-- {
		a.free = append(a.free, Slot(i))
	}
	return a
}

// At returns the order record at s. s must be a valid slot.
func (a *Arena) At(s Slot) *Order { return &a.orders[s] }

// Extra returns the tag storage parallel to s.
func (a *Arena) Extra(s Slot) *ExtraInfo { return &a.extra[s] }

// Valid reports whether s is inside the pool. A lookup entry pointing
// outside the arena is an internal invariant violation; callers treat
// it as a recoverable fault rather than indexing blindly.
func (a *Arena) Valid(s Slot) bool {
	return s != NilSlot && int(s) < len(a.orders)
}

// Lookup resolves an order id to its slot.
func (a *Arena) Lookup(orderID uint64) (Slot, bool) {
	s, ok := a.byOrder[orderID]
	return s, ok
}

// Allocate pops a free slot and binds a fresh order into it. When the
// free list is empty it reclaims dropped chains first and, if that
// yields nothing, doubles the pool. A caller is never left without a
// slot.
func (a *Arena) Allocate(orderID uint64, clientID uint16, price, volume int64, flags OrderFlags, tag VarText) Slot {
	if len(a.free) == 0 {
		a.Reclaim()
		if len(a.free) == 0 {
			a.grow()
		}
	}
	s := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.Bind(s, orderID, clientID, price, volume, flags, tag)
	return s
}

// Bind writes an order into slot s and registers it in both indices.
// The slot's chain link is preserved, which is what lets an insert
// reuse a ghost level head in place.
func (a *Arena) Bind(s Slot, orderID uint64, clientID uint16, price, volume int64, flags OrderFlags, tag VarText) {
	o := &a.orders[s]
	o.ClientID = clientID
	o.OrderID = orderID
	o.Price = price
	o.Volume = volume
	o.Flags = flags
	a.extra[s] = ExtraInfo{VarText: tag}
	a.byOrder[orderID] = s
	a.byClient[clientID] = append(a.byClient[clientID], orderID)
}

// Rekey swaps the order-id index entry for slot s from oldID to newID
// and tracks newID for the owning client. Used by in-place amends
// that mint a new id without moving the order.
func (a *Arena) Rekey(s Slot, oldID, newID uint64) {
	delete(a.byOrder, oldID)
	a.byOrder[newID] = s
	a.byClient[a.orders[s].ClientID] = append(a.byClient[a.orders[s].ClientID], newID)
}

// Retire marks the order at s as a ghost: id and volume cleared,
// order-id index entry removed. The slot itself stays in its level
// chain; the free list and client list are cleaned lazily.
func (a *Arena) Retire(s Slot) {
	o := &a.orders[s]
	delete(a.byOrder, o.OrderID)
	o.OrderID = 0
	o.Volume = 0
}

// FreeNow clears s and returns it to the free list immediately. Only
// the matcher may call this, and only for a level head it has just
// advanced past; everything else goes through DropGhost/DropChain.
func (a *Arena) FreeNow(s Slot) {
	a.orders[s] = Order{}
	a.extra[s] = ExtraInfo{}
	a.free = append(a.free, s)
}

// DropGhost queues a single detached ghost slot for deferred
// reclamation. The chain link is cut first so Reclaim cannot walk
// into live orders.
func (a *Arena) DropGhost(s Slot) {
	a.orders[s].Next = NilSlot
	a.dropped = append(a.dropped, s)
}

// DropChain queues a whole order chain, e.g. the remainder of a level
// removed from a ladder.
func (a *Arena) DropChain(head Slot) {
	if head == NilSlot {
		return
	}
	a.dropped = append(a.dropped, head)
}

// Reclaim walks every dropped chain, clearing each slot and pushing
// it onto the free list, then empties the dropped queue. It runs on
// free-list exhaustion or an explicit idle tick, keeping per-order
// cleanup off the matching path. Returns the number of slots freed.
func (a *Arena) Reclaim() int {
	n := 0
	for _, head := range a.dropped {
		for s := head; s != NilSlot; {
			next := a.orders[s].Next
			a.orders[s] = Order{}
			a.extra[s] = ExtraInfo{}
			a.free = append(a.free, s)
			s = next
			n++
		}
	}
	a.dropped = a.dropped[:0]
	a.reclaimed += uint64(n)
	return n
}

// grow doubles the pool and extends the free list with the new slots.
func (a *Arena) grow() {
	old := len(a.orders)
	orders := make([]Order, 2*old)
	copy(orders, a.orders)
	extra := make([]ExtraInfo, 2*old)
	copy(extra, a.extra)
	a.orders = orders
	a.extra = extra
	for i := 2*old - 1; i >= old; i-- {
		a.free = append(a.free, Slot(i))
	}
	a.grown++
}

// OrdersOf returns the tracked order ids for a client. The list may
// contain stale ids; callers prune them as encountered.
func (a *Arena) OrdersOf(clientID uint16) ([]uint64, bool) {
	ids, ok := a.byClient[clientID]
	return ids, ok
}

// SetOrdersOf replaces a client's tracked order id list after lazy
// pruning.
func (a *Arena) SetOrdersOf(clientID uint16, ids []uint64) {
	a.byClient[clientID] = ids
}

// Cap is the number of usable slots.
func (a *Arena) Cap() int { return len(a.orders) - 1 }

// FreeCount is the current free-list depth.
func (a *Arena) FreeCount() int { return len(a.free) }

// DroppedCount is the number of chains awaiting reclamation.
func (a *Arena) DroppedCount() int { return len(a.dropped) }

// Live is the number of orders the id index currently tracks.
func (a *Arena) Live() int { return len(a.byOrder) }

// Reclaimed is the total number of slots recovered so far.
func (a *Arena) Reclaimed() uint64 { return a.reclaimed }
