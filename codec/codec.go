// Package codec encodes and decodes the densely packed wire frames
// exchanged with gateways. Every request carries a message id, the
// instrument series key and a (gateway, sequence) operation id; the
// transport layer hands the raw datagram here and receives typed
// values back.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"matchd/domain/book"
	"matchd/domain/series"
)

// MsgID tags every frame.
type MsgID uint8

const (
	MsgCreateBook MsgID = iota
	MsgClear
	MsgInsert
	MsgQuote
	MsgDelete
	MsgBulkDelete
	MsgAmend

	MsgInsertInd
	MsgDeleteInd
	MsgAmendInd
	MsgTradeInd
	MsgErrorInd
	MsgClearInd
	MsgBookAvailable
	MsgConfirmation
)

func (m MsgID) String() string {
	switch m {
	case MsgCreateBook:
		return "create_book"
	case MsgClear:
		return "clear"
	case MsgInsert:
		return "insert"
	case MsgQuote:
		return "quote"
	case MsgDelete:
		return "delete"
	case MsgBulkDelete:
		return "bulk_delete"
	case MsgAmend:
		return "amend"
	case MsgInsertInd:
		return "insert_ind"
	case MsgDeleteInd:
		return "delete_ind"
	case MsgAmendInd:
		return "amend_ind"
	case MsgTradeInd:
		return "trade_ind"
	case MsgErrorInd:
		return "error_ind"
	case MsgClearInd:
		return "clear_ind"
	case MsgBookAvailable:
		return "book_available"
	case MsgConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

const (
	seriesLen = 12
	headerLen = 1 + seriesLen + 4
)

var (
	ErrShortBuffer = errors.New("codec: buffer too short")
	ErrUnknownMsg  = errors.New("codec: unknown message id")
)

// OperationID identifies one inbound operation: the originating
// gateway and its 16-bit sequence number.
type OperationID struct {
	Gateway  uint16
	Sequence uint16
}

// Request is the decoded form of one inbound frame. Msg selects which
// payload field is meaningful, mirroring the wire union.
type Request struct {
	Msg    MsgID
	Series series.ID
	Op     OperationID

	Behaviours book.Behaviours
	Insert     book.InsertReq
	Quote      book.QuoteReq
	Delete     book.DeleteReq
	BulkDelete book.BulkDeleteReq
	Amend      book.AmendReq
}

func putSeries(b []byte, id series.ID) {
	b[0] = id.Country
	b[1] = id.Market
	b[2] = id.Group
	b[3] = id.Modifier
	binary.BigEndian.PutUint16(b[4:6], id.Commodity)
	binary.BigEndian.PutUint16(b[6:8], id.Expiration)
	binary.BigEndian.PutUint32(b[8:12], uint32(id.Strike))
}

func getSeries(b []byte) series.ID {
	return series.ID{
		Country:    b[0],
		Market:     b[1],
		Group:      b[2],
		Modifier:   b[3],
		Commodity:  binary.BigEndian.Uint16(b[4:6]),
		Expiration: binary.BigEndian.Uint16(b[6:8]),
		Strike:     int32(binary.BigEndian.Uint32(b[8:12])),
	}
}

func putHeader(b []byte, msg MsgID, s series.ID, op OperationID) {
	b[0] = byte(msg)
	putSeries(b[1:], s)
	binary.BigEndian.PutUint16(b[13:15], op.Gateway)
	binary.BigEndian.PutUint16(b[15:17], op.Sequence)
}

// EncodeRequest renders req as one wire frame.
func EncodeRequest(req Request) ([]byte, error) {
	var payload []byte
	switch req.Msg {
	case MsgCreateBook:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(req.Behaviours))
	case MsgClear:
		payload = nil
	case MsgInsert:
		r := req.Insert
		payload = make([]byte, 2+1+8+8+book.VarTextSize)
		binary.BigEndian.PutUint16(payload[0:2], r.ClientID)
		payload[2] = byte(r.Flags)
		binary.BigEndian.PutUint64(payload[3:11], uint64(r.Price))
		binary.BigEndian.PutUint64(payload[11:19], uint64(r.Volume))
		copy(payload[19:], r.Tag[:])
	case MsgQuote:
		r := req.Quote
		if len(r.Bids) > 255 || len(r.Asks) > 255 {
			return nil, fmt.Errorf("codec: quote with %d/%d levels", len(r.Bids), len(r.Asks))
		}
		payload = make([]byte, 2+book.VarTextSize+2+16*(len(r.Bids)+len(r.Asks)))
		binary.BigEndian.PutUint16(payload[0:2], r.ClientID)
		copy(payload[2:], r.Tag[:])
		payload[12] = byte(len(r.Bids))
		payload[13] = byte(len(r.Asks))
		off := 14
		for _, lv := range append(append([]book.QuoteLevel{}, r.Bids...), r.Asks...) {
			binary.BigEndian.PutUint64(payload[off:off+8], uint64(lv.Price))
			binary.BigEndian.PutUint64(payload[off+8:off+16], uint64(lv.Volume))
			off += 16
		}
	case MsgDelete:
		r := req.Delete
		payload = make([]byte, 2+8)
		binary.BigEndian.PutUint16(payload[0:2], r.ClientID)
		binary.BigEndian.PutUint64(payload[2:10], r.OrderID)
	case MsgBulkDelete:
		r := req.BulkDelete
		payload = make([]byte, 2+1+book.VarTextSize)
		binary.BigEndian.PutUint16(payload[0:2], r.ClientID)
		payload[2] = byte(r.Flags)
		copy(payload[3:], r.Tag[:])
	case MsgAmend:
		r := req.Amend
		payload = make([]byte, 2+8+8+8+1+book.VarTextSize)
		binary.BigEndian.PutUint16(payload[0:2], r.ClientID)
		binary.BigEndian.PutUint64(payload[2:10], r.OrderID)
		binary.BigEndian.PutUint64(payload[10:18], uint64(r.Price))
		binary.BigEndian.PutUint64(payload[18:26], uint64(r.Volume))
		if r.VolumeDelta {
			payload[26] = 1
		}
		copy(payload[27:], r.Tag[:])
	default:
		return nil, ErrUnknownMsg
	}

	buf := make([]byte, headerLen+len(payload))
	putHeader(buf, req.Msg, req.Series, req.Op)
	copy(buf[headerLen:], payload)
	return buf, nil
}

// DecodeRequest parses one inbound frame.
func DecodeRequest(buf []byte) (Request, error) {
	var req Request
	if len(buf) < headerLen {
		return req, ErrShortBuffer
	}
	req.Msg = MsgID(buf[0])
	req.Series = getSeries(buf[1:13])
	req.Op.Gateway = binary.BigEndian.Uint16(buf[13:15])
	req.Op.Sequence = binary.BigEndian.Uint16(buf[15:17])
	p := buf[headerLen:]

	switch req.Msg {
	case MsgCreateBook:
		if len(p) < 4 {
			return req, ErrShortBuffer
		}
		req.Behaviours = book.Behaviours(binary.BigEndian.Uint32(p))
	case MsgClear:
	case MsgInsert:
		if len(p) < 19+book.VarTextSize {
			return req, ErrShortBuffer
		}
		req.Insert.ClientID = binary.BigEndian.Uint16(p[0:2])
		req.Insert.Flags = book.OrderFlags(p[2])
		req.Insert.Price = int64(binary.BigEndian.Uint64(p[3:11]))
		req.Insert.Volume = int64(binary.BigEndian.Uint64(p[11:19]))
		copy(req.Insert.Tag[:], p[19:])
	case MsgQuote:
		if len(p) < 14 {
			return req, ErrShortBuffer
		}
		req.Quote.ClientID = binary.BigEndian.Uint16(p[0:2])
		copy(req.Quote.Tag[:], p[2:12])
		nBids, nAsks := int(p[12]), int(p[13])
		if len(p) < 14+16*(nBids+nAsks) {
			return req, ErrShortBuffer
		}
		off := 14
		read := func(n int) []book.QuoteLevel {
			if n == 0 {
				return nil
			}
			out := make([]book.QuoteLevel, n)
			for i := range out {
				out[i].Price = int64(binary.BigEndian.Uint64(p[off : off+8]))
				out[i].Volume = int64(binary.BigEndian.Uint64(p[off+8 : off+16]))
				off += 16
			}
			return out
		}
		req.Quote.Bids = read(nBids)
		req.Quote.Asks = read(nAsks)
	case MsgDelete:
		if len(p) < 10 {
			return req, ErrShortBuffer
		}
		req.Delete.ClientID = binary.BigEndian.Uint16(p[0:2])
		req.Delete.OrderID = binary.BigEndian.Uint64(p[2:10])
	case MsgBulkDelete:
		if len(p) < 3+book.VarTextSize {
			return req, ErrShortBuffer
		}
		req.BulkDelete.ClientID = binary.BigEndian.Uint16(p[0:2])
		req.BulkDelete.Flags = book.OrderFlags(p[2])
		copy(req.BulkDelete.Tag[:], p[3:])
	case MsgAmend:
		if len(p) < 27+book.VarTextSize {
			return req, ErrShortBuffer
		}
		req.Amend.ClientID = binary.BigEndian.Uint16(p[0:2])
		req.Amend.OrderID = binary.BigEndian.Uint64(p[2:10])
		req.Amend.Price = int64(binary.BigEndian.Uint64(p[10:18]))
		req.Amend.Volume = int64(binary.BigEndian.Uint64(p[18:26]))
		req.Amend.VolumeDelta = p[26] == 1
		copy(req.Amend.Tag[:], p[27:])
	default:
		return req, ErrUnknownMsg
	}
	return req, nil
}
