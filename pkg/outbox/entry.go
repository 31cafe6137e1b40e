package outbox

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// OpType is the kind of log record
type OpType byte

const (
	// OpEnqueue records a pending save; Payload is the JSON request
	OpEnqueue OpType = 1

	// OpAck records that the save referenced by Ref reached the store
	OpAck OpType = 2

	// OpDiscard records that the save referenced by Ref failed permanently
	OpDiscard OpType = 3
)

// EntryHeaderSize is the fixed header size.
// Layout: LSN(8) + Ref(8) + OpType(1) + Reserved(3) + PayloadLen(4) + Timestamp(8)
const EntryHeaderSize = 32

// Entry is one record in the outbox log
type Entry struct {
	LSN       uint64 // Log sequence number, increasing across segments
	Ref       uint64 // LSN of the enqueue an ack or discard settles
	Op        OpType
	Payload   []byte
	Timestamp time.Time
}

// Encode serializes the entry followed by a CRC32 of everything before it
func (e *Entry) Encode() []byte {
	payloadLen := len(e.Payload)
	buf := make([]byte, EntryHeaderSize+payloadLen+4)

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], e.Ref)
	buf[16] = byte(e.Op)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(payloadLen))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(e.Timestamp.UnixMicro()))

	offset := EntryHeaderSize
	copy(buf[offset:], e.Payload)
	offset += payloadLen

	crc := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:], crc)
	return buf
}

// DecodeEntry parses one encoded entry
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}

	payloadLen := int(binary.LittleEndian.Uint32(data[20:24]))
	size := EntryHeaderSize + payloadLen + 4
	if len(data) < size {
		return nil, ErrTruncated
	}
	data = data[:size]

	stored := binary.LittleEndian.Uint32(data[size-4:])
	if stored != crc32.ChecksumIEEE(data[:size-4]) {
		return nil, ErrCorrupted
	}

	e := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[0:8]),
		Ref:       binary.LittleEndian.Uint64(data[8:16]),
		Op:        OpType(data[16]),
		Timestamp: time.UnixMicro(int64(binary.LittleEndian.Uint64(data[24:32]))).UTC(),
	}
	if payloadLen > 0 {
		e.Payload = make([]byte, payloadLen)
		copy(e.Payload, data[EntryHeaderSize:EntryHeaderSize+payloadLen])
	}
	return e, nil
}

// Size returns the encoded size
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Payload) + 4
}

func (e *Entry) String() string {
	name := "UNKNOWN"
	switch e.Op {
	case OpEnqueue:
		name = "ENQUEUE"
	case OpAck:
		name = "ACK"
	case OpDiscard:
		name = "DISCARD"
	}
	return fmt.Sprintf("outbox[LSN=%d Ref=%d Op=%s PayloadLen=%d]", e.LSN, e.Ref, name, len(e.Payload))
}
