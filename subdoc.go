package memd

import (
	"fmt"
	"log/slog"

	"github.com/pior/memd/mcbp"
)

// SubdocEntry is the outcome of one path of a sub-document request. Value
// aliases the response buffer and is only valid during delivery.
type SubdocEntry struct {
	Status  ErrorKind
	Index   int
	Value   []byte
	Present bool
}

// isLookupOpcode reports whether opcode reads paths without mutating.
func isLookupOpcode(opcode mcbp.Opcode) bool {
	switch opcode {
	case mcbp.OpSubdocGet, mcbp.OpSubdocExists, mcbp.OpSubdocGetCount, mcbp.OpSubdocMultiLookup:
		return true
	}
	return false
}

func isMultiOpcode(opcode mcbp.Opcode) bool {
	return opcode == mcbp.OpSubdocMultiLookup || opcode == mcbp.OpSubdocMultiMutation
}

// parseSingleSubdoc returns the single entry of a one-path response. The
// whole value is the path result.
func parseSingleSubdoc(kind ErrorKind, value []byte) []SubdocEntry {
	return []SubdocEntry{{
		Status:  kind,
		Index:   0,
		Value:   value,
		Present: true,
	}}
}

// parseMultiLookup decodes (status:2, len:4, value:len) records in arrival
// order. The value is exposed only for successful paths but always skipped.
func parseMultiLookup(logger *slog.Logger, value []byte, count int) ([]SubdocEntry, error) {
	entries := make([]SubdocEntry, count)
	c := mcbp.NewCursor(value)

	for i := 0; c.Len() > 0; i++ {
		if i >= count {
			return nil, &mcbp.ProtocolError{
				Message: fmt.Sprintf("lookup response has more than %d records", count),
			}
		}
		status := mcbp.Status(c.Uint16())
		n := int(c.Uint32())
		data := c.Bytes(n)
		if err := c.Err(); err != nil {
			return nil, err
		}

		kind := MapStatus(logger, status)
		entries[i] = SubdocEntry{Status: kind, Index: i, Present: true}
		if kind == Success {
			entries[i].Value = data
		}
	}
	return entries, nil
}

// parseMultiMutation decodes (index:1, status:2, [len:4, value:len])
// records and seats each at its declared index. Paths the server did not
// report stay absent.
func parseMultiMutation(logger *slog.Logger, value []byte, count int) ([]SubdocEntry, error) {
	entries := make([]SubdocEntry, count)
	c := mcbp.NewCursor(value)

	for c.Len() > 0 {
		index := int(c.Uint8())
		status := mcbp.Status(c.Uint16())
		var data []byte
		if status == mcbp.StatusSuccess {
			data = c.Bytes(int(c.Uint32()))
		}
		if err := c.Err(); err != nil {
			return nil, err
		}
		if index >= count {
			return nil, &mcbp.ProtocolError{
				Message: fmt.Sprintf("mutation result index %d out of range for %d paths", index, count),
			}
		}

		entries[index] = SubdocEntry{
			Status:  MapStatus(logger, status),
			Index:   index,
			Value:   data,
			Present: true,
		}
	}
	return entries, nil
}
