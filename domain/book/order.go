package book

// VarTextSize is the fixed width of the client-supplied order tag.
const VarTextSize = 10

// VarText is the opaque tag carried on every order. Bulk delete
// matches it byte for byte.
type VarText [VarTextSize]byte

// Tag builds a VarText from a string, truncating or zero-padding to
// the fixed width.
func Tag(s string) VarText {
	var v VarText
	copy(v[:], s)
	return v
}

// Slot indexes the shared order arena. Slot 0 is the nil sentinel;
// links survive arena growth because they are indices, not pointers.
type Slot uint32

// NilSlot terminates an order chain.
const NilSlot Slot = 0

// OrderFlags carry side and time-in-force bits.
type OrderFlags uint8

const (
	IsBid OrderFlags = 1 << 0
	IsAsk OrderFlags = 1 << 1
	IsFAK OrderFlags = 1 << 2
)

// Behaviours configure per-book amend semantics at creation time.
type Behaviours uint32

const (
	// AmendSameQPSameID keeps the original order id on amends that
	// neither raise volume nor move price.
	AmendSameQPSameID Behaviours = 1 << 0
)

// ErrorCode is reported through ErrorInd. Operations never return Go
// errors for these; the engine reports and moves on.
type ErrorCode uint8

const (
	ErrUnknownOrder      ErrorCode = 1 << 0
	ErrNotClientOrder    ErrorCode = 1 << 1
	ErrClientHasNoOrders ErrorCode = 1 << 2
	ErrDuplicateBook     ErrorCode = 1 << 3
	ErrInternal          ErrorCode = 1 << 4
)

func (c ErrorCode) String() string {
	switch c {
	case ErrUnknownOrder:
		return "unknown_order"
	case ErrNotClientOrder:
		return "not_client_order"
	case ErrClientHasNoOrders:
		return "client_has_no_orders"
	case ErrDuplicateBook:
		return "duplicate_book"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Order is one resting or in-flight order in the shared arena.
// A retired order keeps its price, side and chain link until the slot
// is reclaimed; OrderID == 0 marks it as a ghost.
type Order struct {
	ClientID uint16
	OrderID  uint64
	Price    int64
	Volume   int64
	Flags    OrderFlags
	Next     Slot
}

// ExtraInfo is the fixed-size opaque tag stored parallel to each
// arena slot.
type ExtraInfo struct {
	VarText VarText
}

const counterMask = 0x0000FFFFFFFFFFFF

// BookOf extracts the owning book id from an order or trade id.
func BookOf(id uint64) uint16 { return uint16(id >> 48) }
