package snapshot

import (
	"testing"
	"time"

	"matchd/domain/book"
	"matchd/domain/series"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	in := &Snapshot{
		Seq:     17,
		Created: time.Now(),
		Books: []BookEntry{
			{
				Series:     series.ID{Country: 1, Market: 2, Group: 3, Commodity: 44, Expiration: 2609},
				BookID:     1,
				Behaviours: book.AmendSameQPSameID,
				OrderSeq:   9,
				TradeSeq:   4,
				Orders: []OrderEntry{
					{ClientID: 7, OrderID: 1<<48 | 5, Flags: book.IsBid, Price: 100, Volume: 6, Tag: book.Tag("mm1")},
					{ClientID: 8, OrderID: 1<<48 | 6, Flags: book.IsAsk, Price: 103, Volume: 2},
				},
				Quotes: []QuoteEntry{
					{ClientID: 7, Bids: []uint64{1<<48 | 5}, Asks: nil},
				},
			},
		},
		Gates: map[uint16]uint16{3: 41, 9: 7},
	}

	w := &Writer{Dir: dir}
	if err := w.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil {
		t.Fatal("Load returned nil for existing snapshot")
	}
	if out.Seq != in.Seq {
		t.Fatalf("Seq = %d, want %d", out.Seq, in.Seq)
	}
	if len(out.Books) != 1 || len(out.Books[0].Orders) != 2 {
		t.Fatalf("books/orders shape mismatch: %+v", out.Books)
	}
	b := out.Books[0]
	if b.Series != in.Books[0].Series || b.Behaviours != book.AmendSameQPSameID {
		t.Fatalf("book entry mismatch: %+v", b)
	}
	if b.Orders[0].Tag != book.Tag("mm1") {
		t.Fatalf("tag mismatch: %v", b.Orders[0].Tag)
	}
	if len(b.Quotes) != 1 || b.Quotes[0].ClientID != 7 ||
		len(b.Quotes[0].Bids) != 1 || b.Quotes[0].Bids[0] != 1<<48|5 {
		t.Fatalf("quote entries mismatch: %+v", b.Quotes)
	}
	if out.Gates[3] != 41 || out.Gates[9] != 7 {
		t.Fatalf("gates mismatch: %v", out.Gates)
	}
}

func TestLoadMissingIsNotError(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load of empty dir: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil snapshot, got %+v", s)
	}
}

func TestWriteReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	w := &Writer{Dir: dir}

	if err := w.Write(&Snapshot{Seq: 1}); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := w.Write(&Snapshot{Seq: 2}); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Seq != 2 {
		t.Fatalf("Seq = %d, want 2", s.Seq)
	}
}
