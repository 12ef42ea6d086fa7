// Package outbox keeps every emitted indication durable until a
// downstream has acknowledged it, so the publishing side can crash and
// resume without losing or re-ordering the feed.
package outbox

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Record is one outbound indication frame plus its delivery state.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Frame       []byte
}

// value encoding: [state:1][retries:4][lastAttempt:8][frame]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 13+len(r.Frame))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Frame)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("invalid outbox record length")
	}
	frame := make([]byte, len(b)-13)
	copy(frame, b[13:])
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Frame:       frame,
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db      *pebble.DB
	nextSeq uint64
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}

	o := &Outbox{db: db}

	// Resume the sequence from the highest existing key.
	iter, err := db.NewIter(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if iter.Last() && iter.Valid() {
		o.nextSeq = binary.BigEndian.Uint64(iter.Key())
	}
	if err := iter.Close(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Append stores a fresh indication frame and returns its sequence.
func (o *Outbox) Append(frame []byte) (uint64, error) {
	o.nextSeq++
	rec := Record{State: StateNew, Frame: frame}
	if err := o.db.Set(keyFor(o.nextSeq), encodeRecord(rec), pebble.Sync); err != nil {
		o.nextSeq--
		return 0, err
	}
	return o.nextSeq, nil
}

// LastSeq returns the highest sequence appended so far.
func (o *Outbox) LastSeq() uint64 {
	return o.nextSeq
}

// Get returns the record stored at seq.
func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// MarkSent records a delivery attempt.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.transition(seq, StateSent)
}

// MarkAcked records downstream acknowledgement.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, StateAcked)
}

// MarkFailed records a failed attempt and bumps the retry counter.
func (o *Outbox) MarkFailed(seq uint64) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = StateFailed
	rec.Retries++
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) transition(seq uint64, state State) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// -------------------- Scan --------------------

// UnsentScan iterates NEW and FAILED records in sequence order. This
// is the broadcaster's work queue.
func (o *Outbox) UnsentScan(fn func(seq uint64, rec Record) error) error {
	iter, err := o.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateNew && rec.State != StateFailed {
			continue
		}
		if err := fn(binary.BigEndian.Uint64(iter.Key()), rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAckedUpTo deletes ACKED records with seq <= upTo. Records in
// any other state are kept regardless of age.
func (o *Outbox) TruncateAckedUpTo(upTo uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		UpperBound: keyFor(upTo + 1),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			continue
		}
		if rec.State != StateAcked {
			continue
		}
		if err := batch.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			_ = batch.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		_ = batch.Close()
		return err
	}
	return o.db.Apply(batch, pebble.Sync)
}

// -------------------- Helpers --------------------

func keyFor(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
