package outbox

import (
	"encoding/binary"
	"os"
)

// readSegment decodes every entry in a segment file. Decoding stops at the
// first truncated or corrupted entry and torn is set.
func readSegment(path string) (entries []*Entry, torn bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}

	offset := 0
	for offset < len(data) {
		if len(data)-offset < EntryHeaderSize+4 {
			return entries, true, nil
		}

		payloadLen := int(binary.LittleEndian.Uint32(data[offset+20 : offset+24]))
		size := EntryHeaderSize + payloadLen + 4
		if payloadLen < 0 || offset+size > len(data) {
			return entries, true, nil
		}

		e, err := DecodeEntry(data[offset : offset+size])
		if err != nil {
			return entries, true, nil
		}
		entries = append(entries, e)
		offset += size
	}
	return entries, false, nil
}
