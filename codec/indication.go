package codec

import (
	"encoding/binary"

	"matchd/domain/book"
	"matchd/domain/series"
)

// Indication is the decoded form of one outbound frame. Msg selects
// the meaningful payload field.
type Indication struct {
	Msg    MsgID
	Series series.ID

	Insert book.InsertInd
	Delete book.DeleteInd
	Amend  book.AmendInd
	Trade  book.TradeInd
	Error  book.ErrorInd
	Clear  book.ClearInd

	// MsgBookAvailable
	BookID     uint16
	Behaviours book.Behaviours
	Timestamp  uint64

	// MsgConfirmation
	Op OperationID
}

// EncodeIndication renders ind as one wire frame:
// [msgid:1][series:12][body].
func EncodeIndication(ind Indication) ([]byte, error) {
	var body []byte
	switch ind.Msg {
	case MsgInsertInd:
		i := ind.Insert
		body = make([]byte, 2+2+8+1+8+8)
		binary.BigEndian.PutUint16(body[0:2], i.BookID)
		binary.BigEndian.PutUint16(body[2:4], i.ClientID)
		binary.BigEndian.PutUint64(body[4:12], i.OrderID)
		body[12] = byte(i.Flags)
		binary.BigEndian.PutUint64(body[13:21], uint64(i.Price))
		binary.BigEndian.PutUint64(body[21:29], uint64(i.Volume))
	case MsgDeleteInd:
		i := ind.Delete
		body = make([]byte, 2+2+8)
		binary.BigEndian.PutUint16(body[0:2], i.BookID)
		binary.BigEndian.PutUint16(body[2:4], i.ClientID)
		binary.BigEndian.PutUint64(body[4:12], i.OrderID)
	case MsgAmendInd:
		i := ind.Amend
		body = make([]byte, 2+2+8+8+8+8+1)
		binary.BigEndian.PutUint16(body[0:2], i.BookID)
		binary.BigEndian.PutUint16(body[2:4], i.ClientID)
		binary.BigEndian.PutUint64(body[4:12], i.OrigOrderID)
		binary.BigEndian.PutUint64(body[12:20], i.NewOrderID)
		binary.BigEndian.PutUint64(body[20:28], uint64(i.Price))
		binary.BigEndian.PutUint64(body[28:36], uint64(i.Volume))
		if i.VolumeDelta {
			body[36] = 1
		}
	case MsgTradeInd:
		i := ind.Trade
		body = make([]byte, 2+8+2+2+8+8+8+8+1)
		binary.BigEndian.PutUint16(body[0:2], i.BookID)
		binary.BigEndian.PutUint64(body[2:10], i.TradeID)
		binary.BigEndian.PutUint16(body[10:12], i.AggressorClient)
		binary.BigEndian.PutUint16(body[12:14], i.PassiveClient)
		binary.BigEndian.PutUint64(body[14:22], i.AggressorOrderID)
		binary.BigEndian.PutUint64(body[22:30], i.PassiveOrderID)
		binary.BigEndian.PutUint64(body[30:38], uint64(i.Price))
		binary.BigEndian.PutUint64(body[38:46], uint64(i.Volume))
		if i.AggressorIsBid {
			body[46] = 1
		}
	case MsgErrorInd:
		i := ind.Error
		body = make([]byte, 2+2+8+1)
		binary.BigEndian.PutUint16(body[0:2], i.BookID)
		binary.BigEndian.PutUint16(body[2:4], i.ClientID)
		binary.BigEndian.PutUint64(body[4:12], i.OrderID)
		body[12] = byte(i.Code)
	case MsgClearInd:
		body = make([]byte, 2)
		binary.BigEndian.PutUint16(body, ind.Clear.BookID)
	case MsgBookAvailable:
		body = make([]byte, 2+4+8)
		binary.BigEndian.PutUint16(body[0:2], ind.BookID)
		binary.BigEndian.PutUint32(body[2:6], uint32(ind.Behaviours))
		binary.BigEndian.PutUint64(body[6:14], ind.Timestamp)
	case MsgConfirmation:
		body = make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], ind.Op.Gateway)
		binary.BigEndian.PutUint16(body[2:4], ind.Op.Sequence)
	default:
		return nil, ErrUnknownMsg
	}

	buf := make([]byte, 1+seriesLen+len(body))
	buf[0] = byte(ind.Msg)
	putSeries(buf[1:], ind.Series)
	copy(buf[1+seriesLen:], body)
	return buf, nil
}

// DecodeIndication parses one outbound frame.
func DecodeIndication(buf []byte) (Indication, error) {
	var ind Indication
	if len(buf) < 1+seriesLen {
		return ind, ErrShortBuffer
	}
	ind.Msg = MsgID(buf[0])
	ind.Series = getSeries(buf[1:13])
	p := buf[1+seriesLen:]

	switch ind.Msg {
	case MsgInsertInd:
		if len(p) < 29 {
			return ind, ErrShortBuffer
		}
		ind.Insert = book.InsertInd{
			BookID:   binary.BigEndian.Uint16(p[0:2]),
			ClientID: binary.BigEndian.Uint16(p[2:4]),
			OrderID:  binary.BigEndian.Uint64(p[4:12]),
			Flags:    book.OrderFlags(p[12]),
			Price:    int64(binary.BigEndian.Uint64(p[13:21])),
			Volume:   int64(binary.BigEndian.Uint64(p[21:29])),
		}
	case MsgDeleteInd:
		if len(p) < 12 {
			return ind, ErrShortBuffer
		}
		ind.Delete = book.DeleteInd{
			BookID:   binary.BigEndian.Uint16(p[0:2]),
			ClientID: binary.BigEndian.Uint16(p[2:4]),
			OrderID:  binary.BigEndian.Uint64(p[4:12]),
		}
	case MsgAmendInd:
		if len(p) < 37 {
			return ind, ErrShortBuffer
		}
		ind.Amend = book.AmendInd{
			BookID:      binary.BigEndian.Uint16(p[0:2]),
			ClientID:    binary.BigEndian.Uint16(p[2:4]),
			OrigOrderID: binary.BigEndian.Uint64(p[4:12]),
			NewOrderID:  binary.BigEndian.Uint64(p[12:20]),
			Price:       int64(binary.BigEndian.Uint64(p[20:28])),
			Volume:      int64(binary.BigEndian.Uint64(p[28:36])),
			VolumeDelta: p[36] == 1,
		}
	case MsgTradeInd:
		if len(p) < 47 {
			return ind, ErrShortBuffer
		}
		ind.Trade = book.TradeInd{
			BookID:           binary.BigEndian.Uint16(p[0:2]),
			TradeID:          binary.BigEndian.Uint64(p[2:10]),
			AggressorClient:  binary.BigEndian.Uint16(p[10:12]),
			PassiveClient:    binary.BigEndian.Uint16(p[12:14]),
			AggressorOrderID: binary.BigEndian.Uint64(p[14:22]),
			PassiveOrderID:   binary.BigEndian.Uint64(p[22:30]),
			Price:            int64(binary.BigEndian.Uint64(p[30:38])),
			Volume:           int64(binary.BigEndian.Uint64(p[38:46])),
			AggressorIsBid:   p[46] == 1,
		}
	case MsgErrorInd:
		if len(p) < 13 {
			return ind, ErrShortBuffer
		}
		ind.Error = book.ErrorInd{
			BookID:   binary.BigEndian.Uint16(p[0:2]),
			ClientID: binary.BigEndian.Uint16(p[2:4]),
			OrderID:  binary.BigEndian.Uint64(p[4:12]),
			Code:     book.ErrorCode(p[12]),
		}
	case MsgClearInd:
		if len(p) < 2 {
			return ind, ErrShortBuffer
		}
		ind.Clear.BookID = binary.BigEndian.Uint16(p)
	case MsgBookAvailable:
		if len(p) < 14 {
			return ind, ErrShortBuffer
		}
		ind.BookID = binary.BigEndian.Uint16(p[0:2])
		ind.Behaviours = book.Behaviours(binary.BigEndian.Uint32(p[2:6]))
		ind.Timestamp = binary.BigEndian.Uint64(p[6:14])
	case MsgConfirmation:
		if len(p) < 4 {
			return ind, ErrShortBuffer
		}
		ind.Op.Gateway = binary.BigEndian.Uint16(p[0:2])
		ind.Op.Sequence = binary.BigEndian.Uint16(p[2:4])
	default:
		return ind, ErrUnknownMsg
	}
	return ind, nil
}
