package book

import "testing"

// recorder captures every indication for assertions.
type recorder struct {
	inserts []InsertInd
	deletes []DeleteInd
	amends  []AmendInd
	trades  []TradeInd
	errors  []ErrorInd
	clears  []ClearInd
}

func (r *recorder) OnInsert(ind InsertInd) { r.inserts = append(r.inserts, ind) }
func (r *recorder) OnDelete(ind DeleteInd) { r.deletes = append(r.deletes, ind) }
func (r *recorder) OnAmend(ind AmendInd)   { r.amends = append(r.amends, ind) }
func (r *recorder) OnTrade(ind TradeInd)   { r.trades = append(r.trades, ind) }
func (r *recorder) OnError(ind ErrorInd)   { r.errors = append(r.errors, ind) }
func (r *recorder) OnClear(ind ClearInd)   { r.clears = append(r.clears, ind) }

func (r *recorder) reset() { *r = recorder{} }

func (r *recorder) lastInsert(t *testing.T) InsertInd {
	t.Helper()
	if len(r.inserts) == 0 {
		t.Fatal("no insert indication recorded")
	}
	return r.inserts[len(r.inserts)-1]
}

func newTestBook(behaviours Behaviours) (*Book, *recorder) {
	rec := &recorder{}
	mem := NewArena(64, 8)
	return New(1, behaviours, mem, rec), rec
}

func TestInsertRestsWithAcceptance(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 10, Tag: Tag("a")})

	if len(rec.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(rec.inserts))
	}
	ind := rec.inserts[0]
	if ind.BookID != 1 || ind.ClientID != 1 || ind.Price != 100 || ind.Volume != 10 {
		t.Errorf("insert indication wrong: %+v", ind)
	}
	if BookOf(ind.OrderID) != 1 {
		t.Errorf("order id %x does not carry book id in high bits", ind.OrderID)
	}
	if len(rec.trades) != 0 {
		t.Error("no trade expected on an empty book")
	}
	if b.Depth(IsBid) != 1 || b.VolumeAt(IsBid, 100) != 10 {
		t.Error("order did not rest at price 100")
	}
}

func TestCrossingInsertTrades(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 10, Tag: Tag("a")})
	bidID := rec.lastInsert(t).OrderID

	b.Insert(InsertReq{ClientID: 2, Flags: IsAsk, Price: 100, Volume: 4, Tag: Tag("b")})
	askID := rec.lastInsert(t).OrderID

	if len(rec.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(rec.trades))
	}
	tr := rec.trades[0]
	if tr.Price != 100 || tr.Volume != 4 {
		t.Errorf("trade = %+v, want 4@100", tr)
	}
	if tr.AggressorOrderID != askID || tr.PassiveOrderID != bidID {
		t.Error("aggressor/passive ids swapped")
	}
	if tr.AggressorIsBid {
		t.Error("aggressor side wrong")
	}
	if b.VolumeAt(IsBid, 100) != 6 {
		t.Errorf("passive remainder = %d, want 6", b.VolumeAt(IsBid, 100))
	}
	if b.Depth(IsAsk) != 0 {
		t.Error("fully filled aggressor must not rest")
	}
}

func TestPriceTimePriority(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5})
	first := rec.lastInsert(t).OrderID
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 5})
	second := rec.lastInsert(t).OrderID
	b.Insert(InsertReq{ClientID: 3, Flags: IsBid, Price: 100, Volume: 5})
	third := rec.lastInsert(t).OrderID

	b.Insert(InsertReq{ClientID: 9, Flags: IsAsk, Price: 100, Volume: 12})

	if len(rec.trades) != 3 {
		t.Fatalf("trades = %d, want 3", len(rec.trades))
	}
	order := []uint64{first, second, third}
	for i, tr := range rec.trades {
		if tr.PassiveOrderID != order[i] {
			t.Errorf("trade %d consumed %x, want %x (arrival order)", i, tr.PassiveOrderID, order[i])
		}
	}
	if rec.trades[2].Volume != 2 {
		t.Errorf("third trade volume = %d, want partial 2", rec.trades[2].Volume)
	}
	if b.VolumeAt(IsBid, 100) != 3 {
		t.Errorf("remaining at 100 = %d, want 3", b.VolumeAt(IsBid, 100))
	}
}

func TestNoTradeAtNonCrossingPrice(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsAsk, Price: 101, Volume: 10})
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 10})

	if len(rec.trades) != 0 {
		t.Fatal("bid at 100 must not trade against ask at 101")
	}
	if b.Depth(IsBid) != 1 || b.Depth(IsAsk) != 1 {
		t.Error("both orders should rest")
	}
}

func TestVolumeConservation(t *testing.T) {
	b, rec := newTestBook(0)
	inserted := int64(0)
	for _, in := range []InsertReq{
		{ClientID: 1, Flags: IsBid, Price: 100, Volume: 7},
		{ClientID: 2, Flags: IsBid, Price: 101, Volume: 3},
		{ClientID: 3, Flags: IsAsk, Price: 99, Volume: 6},
		{ClientID: 4, Flags: IsAsk, Price: 100, Volume: 8},
	} {
		inserted += in.Volume
		b.Insert(in)
	}

	traded := int64(0)
	for _, tr := range rec.trades {
		traded += 2 * tr.Volume // consumed on both sides
	}
	resting := int64(0)
	b.EachResting(func(o *Order, _ VarText) { resting += o.Volume })

	if resting+traded != inserted {
		t.Errorf("resting %d + traded %d != inserted %d", resting, traded, inserted)
	}
}

func TestFAKNeverRests(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsAsk, Price: 100, Volume: 3})

	b.Insert(InsertReq{ClientID: 2, Flags: IsBid | IsFAK, Price: 100, Volume: 10})
	fakID := rec.lastInsert(t).OrderID

	if len(rec.trades) != 1 || rec.trades[0].Volume != 3 {
		t.Fatal("FAK should fill the available 3")
	}
	if _, ok := b.mem.Lookup(fakID); ok {
		t.Error("FAK order resolvable after its operation completed")
	}
	if b.Depth(IsBid) != 0 {
		t.Error("FAK residual rested")
	}
	// Residual discard is signalled with a delete for the incoming id.
	last := rec.deletes[len(rec.deletes)-1]
	if last.OrderID != fakID {
		t.Errorf("expected delete indication for %x, got %x", fakID, last.OrderID)
	}
}

func TestAmendSameTermsKeepsID(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 6, Tag: Tag("old")})
	id := rec.lastInsert(t).OrderID

	b.Amend(AmendReq{ClientID: 1, OrderID: id, Price: 100, Volume: 6, Tag: Tag("new")})

	if len(rec.amends) != 1 {
		t.Fatalf("amends = %d, want 1", len(rec.amends))
	}
	am := rec.amends[0]
	if am.OrigOrderID != id || am.NewOrderID != id {
		t.Errorf("amend must keep the id: %+v", am)
	}
	s, _ := b.mem.Lookup(id)
	if b.mem.Extra(s).VarText != Tag("new") {
		t.Error("tag not updated in place")
	}
}

func TestAmendVolumeIncreaseLosesQueuePosition(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 6})
	id := rec.lastInsert(t).OrderID

	b.Amend(AmendReq{ClientID: 1, OrderID: id, Volume: 8})

	am := rec.amends[0]
	if am.NewOrderID == id {
		t.Fatal("raising volume must mint a new order id")
	}
	if _, ok := b.mem.Lookup(id); ok {
		t.Error("original id still resolvable after requeue")
	}
	if _, ok := b.mem.Lookup(am.NewOrderID); !ok {
		t.Error("new id not resting")
	}
	if b.VolumeAt(IsBid, 100) != 8 {
		t.Errorf("resting volume = %d, want 8", b.VolumeAt(IsBid, 100))
	}
}

func TestAmendPriceChangeRematches(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Insert(InsertReq{ClientID: 1, Flags: IsAsk, Price: 105, Volume: 5})
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 5})
	bidID := rec.lastInsert(t).OrderID

	// Repricing the bid to 105 crosses the resting ask.
	b.Amend(AmendReq{ClientID: 2, OrderID: bidID, Price: 105, Volume: 5})

	if len(rec.trades) != 1 {
		t.Fatalf("trades = %d, want 1 after reprice", len(rec.trades))
	}
	if rec.trades[0].Price != 105 || rec.trades[0].Volume != 5 {
		t.Errorf("trade = %+v, want 5@105", rec.trades[0])
	}
	if b.Depth(IsBid) != 0 || b.Depth(IsAsk) != 0 {
		t.Error("book should be empty after the rematch")
	}
}

func TestAmendReductionWithoutBehaviourMintsNewIDInPlace(t *testing.T) {
	b, rec := newTestBook(0) // AMEND_SAMEQP_SAMEID not set
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 10})
	first := rec.lastInsert(t).OrderID
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 10})

	b.Amend(AmendReq{ClientID: 1, OrderID: first, Volume: 4})

	am := rec.amends[0]
	if am.NewOrderID == first {
		t.Fatal("book without same-id behaviour must assign a new id")
	}
	// Queue position is kept: the amended order still trades first.
	b.Insert(InsertReq{ClientID: 9, Flags: IsAsk, Price: 100, Volume: 1})
	if rec.trades[0].PassiveOrderID != am.NewOrderID {
		t.Error("in-place amend lost queue position")
	}
}

func TestAmendDeltaReduction(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 10})
	id := rec.lastInsert(t).OrderID

	b.Amend(AmendReq{ClientID: 1, OrderID: id, Volume: -4, VolumeDelta: true})

	if b.VolumeAt(IsBid, 100) != 6 {
		t.Errorf("volume = %d, want 6 after -4 delta", b.VolumeAt(IsBid, 100))
	}
	if rec.amends[0].NewOrderID != id {
		t.Error("pure reduction should keep the id")
	}
}

func TestAmendToNonPositiveVolumeDeletes(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5})
	id := rec.lastInsert(t).OrderID

	b.Amend(AmendReq{ClientID: 1, OrderID: id, Volume: -5, VolumeDelta: true})

	if _, ok := b.mem.Lookup(id); ok {
		t.Error("order survived an amend to zero volume")
	}
	if len(rec.deletes) == 0 || rec.deletes[len(rec.deletes)-1].OrderID != id {
		t.Error("expected a delete indication")
	}
}

func TestDeleteErrors(t *testing.T) {
	b, rec := newTestBook(0)
	b.Delete(DeleteReq{ClientID: 1, OrderID: 42})
	if len(rec.errors) != 1 || rec.errors[0].Code != ErrUnknownOrder {
		t.Fatalf("errors = %+v, want UNKNOWN_ORDER", rec.errors)
	}

	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5})
	id := rec.lastInsert(t).OrderID
	b.Delete(DeleteReq{ClientID: 2, OrderID: id})
	if rec.errors[1].Code != ErrNotClientOrder {
		t.Errorf("code = %v, want NOT_CLIENT_ORDER", rec.errors[1].Code)
	}
	// Order untouched by the failed delete.
	if b.VolumeAt(IsBid, 100) != 5 {
		t.Error("foreign delete must not affect the order")
	}
}

func TestDeleteLeavesGhostUntilReuse(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5})
	id := rec.lastInsert(t).OrderID
	s, _ := b.mem.Lookup(id)

	b.Delete(DeleteReq{ClientID: 1, OrderID: id})

	// Level survives with a ghost head; a new insert at the exact
	// price takes over the slot in place.
	if b.Depth(IsBid) != 1 {
		t.Fatal("level should remain with a ghost head")
	}
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 3})
	id2 := rec.lastInsert(t).OrderID
	s2, _ := b.mem.Lookup(id2)
	if s2 != s {
		t.Errorf("insert at ghost level used slot %d, want reuse of %d", s2, s)
	}
}

func TestBulkDeleteTagAndSide(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 3, Flags: IsBid, Price: 100, Volume: 1, Tag: Tag("X")})
	b.Insert(InsertReq{ClientID: 3, Flags: IsBid, Price: 101, Volume: 1, Tag: Tag("X")})
	b.Insert(InsertReq{ClientID: 3, Flags: IsBid, Price: 102, Volume: 1, Tag: Tag("Y")})
	b.Insert(InsertReq{ClientID: 3, Flags: IsAsk, Price: 110, Volume: 1, Tag: Tag("X")})
	rec.reset()

	b.BulkDelete(BulkDeleteReq{ClientID: 3, Flags: IsBid, Tag: Tag("X")})

	if len(rec.deletes) != 2 {
		t.Fatalf("deletes = %d, want the two X-tagged bids", len(rec.deletes))
	}
	if b.VolumeAt(IsBid, 102) != 1 {
		t.Error("Y-tagged bid must survive")
	}
	if b.VolumeAt(IsAsk, 110) != 1 {
		t.Error("X-tagged ask must survive a bid-side bulk delete")
	}
	if len(rec.errors) != 0 {
		t.Error("partial matches are skipped, not errors")
	}
}

func TestBulkDeleteNoOrders(t *testing.T) {
	b, rec := newTestBook(0)
	b.BulkDelete(BulkDeleteReq{ClientID: 5, Tag: Tag("X")})
	if len(rec.errors) != 1 || rec.errors[0].Code != ErrClientHasNoOrders {
		t.Fatalf("errors = %+v, want CLIENT_HAS_NO_ORDERS", rec.errors)
	}
}

func TestQuoteInsertAndDiff(t *testing.T) {
	b, rec := newTestBook(AmendSameQPSameID)
	b.Quote(QuoteReq{
		ClientID: 4,
		Tag:      Tag("q"),
		Bids:     []QuoteLevel{{Price: 99, Volume: 10}, {Price: 98, Volume: 20}},
		Asks:     []QuoteLevel{{Price: 101, Volume: 10}},
	})

	if len(rec.inserts) != 3 {
		t.Fatalf("inserts = %d, want 3 quote orders", len(rec.inserts))
	}
	if b.Depth(IsBid) != 2 || b.Depth(IsAsk) != 1 {
		t.Fatal("quote levels not resting")
	}
	rec.reset()

	// Replace: one bid level only (second deleted), ask repriced.
	b.Quote(QuoteReq{
		ClientID: 4,
		Tag:      Tag("q"),
		Bids:     []QuoteLevel{{Price: 99, Volume: 5}},
		Asks:     []QuoteLevel{{Price: 102, Volume: 10}},
	})

	if b.VolumeAt(IsBid, 99) != 5 {
		t.Errorf("bid level volume = %d, want amended 5", b.VolumeAt(IsBid, 99))
	}
	if b.VolumeAt(IsBid, 98) != 0 {
		t.Error("surplus quote level not deleted")
	}
	if b.VolumeAt(IsAsk, 102) != 10 || b.VolumeAt(IsAsk, 101) != 0 {
		t.Error("ask level not repriced")
	}
}

func TestQuoteGrowsAndShrinks(t *testing.T) {
	b, _ := newTestBook(AmendSameQPSameID)
	b.Quote(QuoteReq{ClientID: 4, Bids: []QuoteLevel{{Price: 99, Volume: 1}}})
	b.Quote(QuoteReq{ClientID: 4, Bids: []QuoteLevel{
		{Price: 99, Volume: 1}, {Price: 98, Volume: 2}, {Price: 97, Volume: 3},
	}})
	if b.Depth(IsBid) != 3 {
		t.Fatalf("depth = %d, want 3 after growing the quote", b.Depth(IsBid))
	}
	b.Quote(QuoteReq{ClientID: 4, Bids: nil})
	for _, p := range []int64{99, 98, 97} {
		if b.VolumeAt(IsBid, p) != 0 {
			t.Errorf("level %d survived an empty quote", p)
		}
	}
}

func TestClear(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5})
	b.Insert(InsertReq{ClientID: 2, Flags: IsAsk, Price: 105, Volume: 5})
	rec.reset()

	b.Clear()

	if len(rec.deletes) != 2 || len(rec.clears) != 1 {
		t.Fatalf("deletes=%d clears=%d, want 2/1", len(rec.deletes), len(rec.clears))
	}
	if b.Depth(IsBid) != 0 || b.Depth(IsAsk) != 0 {
		t.Error("ladders not emptied")
	}
}

func TestSnapshotRestoreKeepsPriority(t *testing.T) {
	b, rec := newTestBook(0)
	b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 5, Tag: Tag("a")})
	b.Insert(InsertReq{ClientID: 2, Flags: IsBid, Price: 100, Volume: 5, Tag: Tag("b")})
	firstID := rec.inserts[0].OrderID

	type entry struct {
		o   Order
		tag VarText
	}
	var dump []entry
	b.EachResting(func(o *Order, tag VarText) { dump = append(dump, entry{*o, tag}) })

	rec2 := &recorder{}
	b2 := New(1, 0, NewArena(64, 8), rec2)
	for _, e := range dump {
		b2.Restore(e.o.ClientID, e.o.OrderID, e.o.Flags, e.o.Price, e.o.Volume, e.tag)
	}
	oid, tid := b.Counters()
	b2.SetCounters(oid, tid)

	if len(rec2.inserts) != 0 {
		t.Error("restore must not emit indications")
	}
	b2.Insert(InsertReq{ClientID: 9, Flags: IsAsk, Price: 100, Volume: 1})
	if rec2.trades[0].PassiveOrderID != firstID {
		t.Error("restored book lost queue priority")
	}
}

func BenchmarkInsertMatch(bch *testing.B) {
	rec := &recorder{}
	mem := NewArena(1<<16, 16)
	b := New(1, 0, mem, rec)

	bch.ReportAllocs()
	bch.ResetTimer()
	for i := 0; i < bch.N; i++ {
		b.Insert(InsertReq{ClientID: 1, Flags: IsBid, Price: 100, Volume: 1})
		b.Insert(InsertReq{ClientID: 2, Flags: IsAsk, Price: 100, Volume: 1})
		if i%1024 == 0 {
			rec.reset()
			mem.Reclaim()
		}
	}
}
