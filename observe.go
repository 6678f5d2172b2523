package memd

import "github.com/pior/memd/mcbp"

// Observe key states reported per record.
const (
	ObserveFound       uint8 = 0x00
	ObservePersisted   uint8 = 0x01
	ObserveNotFound    uint8 = 0x80
	ObserveLogicalDrop uint8 = 0x81
)

type observeRecord struct {
	vbucket uint16
	key     []byte
	state   uint8
	cas     uint64
}

// parseObserveRecords decodes every (vb:2, keylen:2, key, state:1, cas:8)
// record before any is delivered, so a truncated body delivers nothing.
func parseObserveRecords(value []byte, collections bool) ([]observeRecord, error) {
	var records []observeRecord
	c := mcbp.NewCursor(value)

	for c.Len() > 0 {
		var rec observeRecord
		rec.vbucket = c.Uint16()
		rec.key = c.Bytes(int(c.Uint16()))
		rec.state = c.Uint8()
		rec.cas = c.Uint64()
		if err := c.Err(); err != nil {
			return nil, err
		}

		if collections {
			_, key, err := mcbp.StripCollectionPrefix(rec.key)
			if err != nil {
				return nil, err
			}
			rec.key = key
		}
		records = append(records, rec)
	}
	return records, nil
}

// splitObserveCAS splits the envelope CAS of an observe response into the
// persistence (high) and replication (low) time hints.
func splitObserveCAS(cas uint64) (ttp, ttr uint32) {
	return uint32(cas >> 32), uint32(cas)
}

type observeSeqno struct {
	failedOver bool
	vbucket    uint16
	uuid       uint64
	persisted  uint64
	current    uint64
	oldUUID    uint64
	oldSeqno   uint64
}

// parseObserveSeqno decodes flag(1) vb(2) uuid(8) persisted(8) current(8)
// followed by old uuid(8) and old seqno(8) when the flag is set.
func parseObserveSeqno(value []byte) (observeSeqno, error) {
	var s observeSeqno
	c := mcbp.NewCursor(value)

	s.failedOver = c.Uint8() != 0
	s.vbucket = c.Uint16()
	s.uuid = c.Uint64()
	s.persisted = c.Uint64()
	s.current = c.Uint64()
	if s.failedOver {
		s.oldUUID = c.Uint64()
		s.oldSeqno = c.Uint64()
	}
	return s, c.Err()
}
