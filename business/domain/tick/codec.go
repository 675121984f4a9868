package tick

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
	"math"
	"time"
)

// Compact tick history layout: [count: u16 big endian][type, hour, minute] * count.
const (
	HeaderSize = 2
	RecordSize = 3
	MaxRecords = math.MaxUint16
)

var (
	ErrTooManyRecords   = errors.New("too many records for compact history")
	ErrShortBuffer      = errors.New("buffer shorter than compact history header")
	ErrTruncated        = errors.New("buffer shorter than declared record count")
	ErrCapacityExceeded = errors.New("declared record count exceeds destination capacity")
)

// Record is a tick reduced to its type and the local hour and minute of its creation.
type Record struct {
	Type   uint8
	Hour   uint8
	Minute uint8
}

func EncodedSize(count int) int {
	return HeaderSize + RecordSize*count
}

func Encode(records []Record) ([]byte, error) {
	if len(records) > MaxRecords {
		return nil, errors.Wrapf(ErrTooManyRecords, "[%d] records, maximum [%d]", len(records), MaxRecords)
	}

	buf := make([]byte, 0, EncodedSize(len(records)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(records)))
	for _, record := range records {
		buf = append(buf, record.Type, record.Hour, record.Minute)
	}
	return buf, nil
}

// Decode reads a compact history from buf into dst and returns the number of records
// read. It never writes beyond len(dst) and never allocates. Bytes following the
// declared records are ignored.
func Decode(buf []byte, dst []Record) (int, error) {
	if len(buf) < HeaderSize {
		return 0, ErrShortBuffer
	}
	count := int(binary.BigEndian.Uint16(buf))
	if count > len(dst) {
		return 0, ErrCapacityExceeded
	}
	if len(buf) < EncodedSize(count) {
		return 0, ErrTruncated
	}

	for i := 0; i < count; i++ {
		offset := HeaderSize + i*RecordSize
		dst[i] = Record{
			Type:   buf[offset],
			Hour:   buf[offset+1],
			Minute: buf[offset+2],
		}
	}
	return count, nil
}

// Compact localizes each tick to loc and truncates it to hour and minute.
func Compact(ticks []entities.Tick, loc *time.Location) []Record {
	records := make([]Record, 0, len(ticks))
	for _, t := range ticks {
		local := t.CreatedAt.In(loc)
		records = append(records, Record{
			Type:   t.Type,
			Hour:   uint8(local.Hour()),
			Minute: uint8(local.Minute()),
		})
	}
	return records
}

// Since returns the start of the current tick day: the most recent dayStartHour:00
// in loc at or before now.
func Since(now time.Time, loc *time.Location, dayStartHour int) time.Time {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), dayStartHour, 0, 0, 0, loc)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}
