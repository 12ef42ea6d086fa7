package sequence

// Status is the verdict on one inbound operation id.
type Status uint8

const (
	// InOrder means the sequence is exactly last+1 and was admitted.
	InOrder Status = iota
	// Duplicate means the sequence was already applied; drop silently.
	Duplicate
	// Gap means sequences are missing; drop and wait for a resend.
	Gap
)

func (s Status) String() string {
	switch s {
	case InOrder:
		return "in-order"
	case Duplicate:
		return "duplicate"
	default:
		return "gap"
	}
}

// Tracker gates inbound operations per originating gateway: an
// operation is admitted only when its 16-bit sequence is exactly one
// past the last processed one. Nothing is buffered; a reliable
// in-order transport is assumed.
type Tracker struct {
	last map[uint16]uint16
}

// NewTracker starts every gateway at sequence 0, so each gateway's
// first admissible operation carries sequence 1.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[uint16]uint16)}
}

// Check returns the verdict for seq without touching the gateway's
// state. Comparison is done in uint16 space so the counter wraps
// cleanly.
func (t *Tracker) Check(gateway, seq uint16) Status {
	next := t.last[gateway] + 1
	if seq == next {
		return InOrder
	}
	if seq-next < 0x8000 {
		return Gap
	}
	return Duplicate
}

// Admit checks seq and advances the gateway on success. Callers that
// must durably record the operation before owning its sequence use
// Check first and Admit only once the record is safe; otherwise a
// resend after a failed write would read as a duplicate.
func (t *Tracker) Admit(gateway, seq uint16) Status {
	st := t.Check(gateway, seq)
	if st == InOrder {
		t.last[gateway] = seq
	}
	return st
}

// Last returns the gateway's last processed sequence.
func (t *Tracker) Last(gateway uint16) uint16 {
	return t.last[gateway]
}

// Reset forces a gateway's last processed sequence, used when
// restoring from a snapshot.
func (t *Tracker) Reset(gateway, seq uint16) {
	t.last[gateway] = seq
}

// Gateways returns a copy of the per-gateway state for snapshotting.
func (t *Tracker) Gateways() map[uint16]uint16 {
	out := make(map[uint16]uint16, len(t.last))
	for g, s := range t.last {
		out[g] = s
	}
	return out
}
