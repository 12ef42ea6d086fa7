package book

// InsertInd acknowledges an accepted insert with its minted order id.
type InsertInd struct {
	BookID   uint16
	ClientID uint16
	OrderID  uint64
	Flags    OrderFlags
	Price    int64
	Volume   int64
}

// DeleteInd reports an order leaving the book: explicit delete, full
// fill, FAK residual discard, or amend requeue.
type DeleteInd struct {
	BookID   uint16
	ClientID uint16
	OrderID  uint64
}

// AmendInd reports an amend with the original and effective order id.
type AmendInd struct {
	BookID      uint16
	ClientID    uint16
	OrigOrderID uint64
	NewOrderID  uint64
	Price       int64
	Volume      int64
	VolumeDelta bool
}

// TradeInd reports one match.
type TradeInd struct {
	BookID           uint16
	TradeID          uint64
	AggressorClient  uint16
	PassiveClient    uint16
	AggressorOrderID uint64
	PassiveOrderID   uint64
	Price            int64
	Volume           int64
	AggressorIsBid   bool
}

// ErrorInd reports a recoverable per-operation failure.
type ErrorInd struct {
	BookID   uint16
	ClientID uint16
	OrderID  uint64
	Code     ErrorCode
}

// ClearInd reports that a book was cleared of all resting orders.
type ClearInd struct {
	BookID uint16
}

// Client receives every indication a book emits, one method per
// variant. Implementations must not block: they run inline on the
// matching path.
type Client interface {
	OnInsert(InsertInd)
	OnDelete(DeleteInd)
	OnAmend(AmendInd)
	OnTrade(TradeInd)
	OnError(ErrorInd)
	OnClear(ClearInd)
}
