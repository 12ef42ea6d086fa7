package entry

import "time"

// RecordType mirrors the codec message id of the journaled frame, so a
// replay can hand the frame straight back to the request decoder.
type RecordType uint8

// Record is one journaled operation. Data holds the wire frame exactly
// as it was admitted, gateway header included.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
