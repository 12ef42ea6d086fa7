// Package entry journals every admitted operation before it reaches a
// book, so a crashed engine can be rebuilt by replaying the log on top
// of the latest snapshot.
package entry

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"matchd/infra/wal"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
}

type WAL struct {
	dir        string
	segSize    int64
	segDur     time.Duration
	current    *segment
	segIndex   int
	lastRotate time.Time
}

// Open creates the journal directory if needed and appends to the
// highest existing segment, so a restart never overwrites records.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	// Resume on the highest existing segment. Truncation can leave
	// gaps, so the index comes from the filenames, not the count.
	index := 0
	files, err := filepath.Glob(filepath.Join(cfg.Dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	for _, path := range files {
		var i int
		if _, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &i); err == nil && i > index {
			index = i
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
	}, nil
}

// Append writes one record and fsyncs it before returning. A record
// whose append fails is never reported as journaled.
//
// Frame:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	buf := make([]byte, 1+8+8+4+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := wal.CRC32(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return err
	}
	if err := w.current.sync(); err != nil {
		return err
	}

	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.segSize {
		return true
	}
	return w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes whole segments whose records are all covered
// by a snapshot at seq. The live segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := filepath.Glob(filepath.Join(w.dir, "segment-*.wal"))
	if err != nil {
		return err
	}

	live := w.current.file.Name()
	for _, path := range files {
		if path == live {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (w *WAL) Close() error {
	return w.current.close()
}
