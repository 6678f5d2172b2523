package memd

import (
	"encoding/binary"
	"fmt"

	"github.com/pior/memd/mcbp"
)

const (
	itemFlagsLen    = 4
	getMetaExtras   = 4 + 4 + 4 + 8 // deleted, flags, expiry, seqno
	counterValueLen = 8
	getCIDExtras    = 8 + 4 // manifest id, collection id
)

func noRelease() {}

// decodeValue extracts the item flags and value of a successful read and
// inflates compressed values when a Decompressor is configured. release
// returns any scratch buffer and must run after delivery.
func (d *Dispatcher) decodeValue(env *mcbp.Envelope) (value []byte, flags uint32, datatype mcbp.Datatype, release func()) {
	if len(env.Extras) == itemFlagsLen {
		flags = binary.BigEndian.Uint32(env.Extras)
	}
	value = env.Value
	datatype = env.Datatype
	release = noRelease

	if len(value) == 0 || !datatype.Has(mcbp.DatatypeCompressed) || d.decompressor == nil {
		return value, flags, datatype, release
	}

	inflated, done, err := d.decompressor.Decompress(value)
	if err != nil {
		d.logger.Warn("memd: failed to inflate value, delivering compressed", "opaque", env.Opaque, "error", err)
		return value, flags, datatype, release
	}
	return inflated, flags, datatype &^ mcbp.DatatypeCompressed, done
}

// extractToken marks res as carrying mutation data and merges the token, if
// the response has one, into the connection's table.
func (d *Dispatcher) extractToken(p *Pipeline, req *Request, env *mcbp.Envelope, m *mutationResult) {
	m.hasToken = true

	tok, ok := decodeMutationToken(env.Extras, req.VBucket)
	if !ok {
		return
	}
	m.token = tok

	if p == nil || p.Tokens == nil || d.topology == nil {
		return
	}
	if p.Tokens.merge(tok, d.topology.NumVBuckets()) {
		d.stats.recordTokenMerge()
	}
}

func (d *Dispatcher) handleGet(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &GetResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)

	release := noRelease
	if res.Status == Success {
		res.Value, res.ItemFlags, res.Datatype, release = d.decodeValue(env)
	}
	defer release()

	d.deliver(p, req, delivery{cbtype: CallbackGet, res: res})
	return nil
}

func (d *Dispatcher) handleReplica(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &ReplicaResult{Context: d.newContext(p, req, env, imm)}
	res.Final = false
	res.errInfo.arm(env)

	release := noRelease
	if res.Status == Success {
		res.Value, res.ItemFlags, res.Datatype, release = d.decodeValue(env)
	}
	defer release()

	d.deliver(p, req, delivery{cbtype: CallbackGetReplica, res: res, ext: true})
	return nil
}

func (d *Dispatcher) handleExists(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &ExistsResult{Context: d.newContext(p, req, env, imm)}

	if res.Status == Success && len(env.Extras) == getMetaExtras {
		c := mcbp.NewCursor(env.Extras)
		res.Deleted = c.Uint32() != 0
		res.ItemFlags = c.Uint32()
		res.Expiry = c.Uint32()
		res.Seqno = c.Uint64()
	}

	d.deliver(p, req, delivery{cbtype: CallbackExists, res: res})
	return nil
}

func (d *Dispatcher) handleStore(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &StoreResult{
		Context: d.newContext(p, req, env, imm),
		Op:      storeOpFor(env.Opcode),
	}
	res.errInfo.arm(env)
	d.extractToken(p, req, env, &res.mutationResult)

	d.deliver(p, req, delivery{cbtype: CallbackStore, res: res, ext: req.Has(FlagExtended)})
	return nil
}

func (d *Dispatcher) handleCounter(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &CounterResult{Context: d.newContext(p, req, env, imm)}

	if res.Status == Success {
		if len(env.Value) != counterValueLen {
			return &mcbp.ProtocolError{
				Message: fmt.Sprintf("counter value is %d bytes, want %d", len(env.Value), counterValueLen),
			}
		}
		res.Value = binary.BigEndian.Uint64(env.Value)
		d.extractToken(p, req, env, &res.mutationResult)
	} else {
		res.errInfo.arm(env)
	}

	d.deliver(p, req, delivery{cbtype: CallbackCounter, res: res})
	return nil
}

func (d *Dispatcher) handleRemove(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &RemoveResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)
	d.extractToken(p, req, env, &res.mutationResult)

	d.deliver(p, req, delivery{cbtype: CallbackRemove, res: res})
	return nil
}

func (d *Dispatcher) handleTouch(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &TouchResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)

	d.deliver(p, req, delivery{cbtype: CallbackTouch, res: res})
	return nil
}

func (d *Dispatcher) handleUnlock(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &UnlockResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)

	d.deliver(p, req, delivery{cbtype: CallbackUnlock, res: res})
	return nil
}

func (d *Dispatcher) handleSubdoc(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &SubdocResult{
		Context: d.newContext(p, req, env, imm),
		Multi:   isMultiOpcode(env.Opcode),
	}

	cbtype := CallbackSubdocLookup
	if !isLookupOpcode(env.Opcode) {
		cbtype = CallbackSubdocMutate
		d.extractToken(p, req, env, &res.mutationResult)
	}

	switch {
	case res.Multi && res.Status == Success:
		count := max(req.SubdocCount, 0)
		var err error
		if env.Opcode == mcbp.OpSubdocMultiLookup {
			res.Entries, err = parseMultiLookup(d.logger, env.Value, count)
		} else {
			res.Entries, err = parseMultiMutation(d.logger, env.Value, count)
		}
		if err != nil {
			return err
		}
	case !res.Multi && imm == Success && (res.Status == Success || res.Status.IsSubdoc()):
		res.Entries = parseSingleSubdoc(MapStatus(d.logger, env.Status), env.Value)
	default:
		res.errInfo.arm(env)
	}

	d.deliver(p, req, delivery{cbtype: cbtype, res: res})
	return nil
}

func (d *Dispatcher) handleObserve(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	ctx := d.newContext(p, req, env, imm)
	ctx.Final = false

	if ctx.Status != Success {
		res := &ObserveResult{Context: ctx}
		d.deliver(p, req, delivery{cbtype: CallbackObserve, res: res, ext: true, bare: true, partial: true})
		return nil
	}

	records, err := parseObserveRecords(env.Value, d.collectionsEnabled)
	if err != nil {
		return err
	}

	ttp, ttr := splitObserveCAS(env.CAS)
	for _, rec := range records {
		res := &ObserveResult{
			Context:  ctx,
			VBucket:  rec.vbucket,
			State:    rec.state,
			IsMaster: d.isMaster(p, rec.vbucket),
			TTP:      ttp,
			TTR:      ttr,
		}
		res.Key = rec.key
		res.CAS = rec.cas
		d.deliver(p, req, delivery{cbtype: CallbackObserve, res: res, ext: true, partial: true})
	}
	return nil
}

func (d *Dispatcher) isMaster(p *Pipeline, vb uint16) bool {
	if p == nil || d.topology == nil {
		return false
	}
	return p.Index == d.topology.VBucketMaster(vb)
}

func (d *Dispatcher) handleObserveSeqno(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &ObserveSeqnoResult{Context: d.newContext(p, req, env, imm)}
	if p != nil {
		res.ServerIndex = p.Index
	}

	if res.Status == Success {
		s, err := parseObserveSeqno(env.Value)
		if err != nil {
			return err
		}
		res.VBucket = s.vbucket
		res.UUID = s.uuid
		res.PersistedSeqno = s.persisted
		res.CurrentSeqno = s.current
		res.FailedOver = s.failedOver
		res.OldUUID = s.oldUUID
		res.OldSeqno = s.oldSeqno
		res.IsMaster = d.isMaster(p, s.vbucket)
	}

	d.deliver(p, req, delivery{cbtype: CallbackObserveSeqno, res: res})
	return nil
}

func (d *Dispatcher) handleStats(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &StatsResult{Context: d.newContext(p, req, env, imm)}
	res.Server = res.Endpoint

	// An error or an empty key ends this node's stream.
	if res.Status != Success || len(env.Key) == 0 {
		d.deliver(p, req, delivery{cbtype: CallbackStats, res: res, ext: true, bare: true})
		return nil
	}

	res.Final = false
	res.Key = env.Key
	res.StatKey = string(env.Key)
	res.StatValue = string(env.Value)
	d.deliver(p, req, delivery{cbtype: CallbackStats, res: res, ext: true, partial: true})
	return nil
}

func (d *Dispatcher) handleNoop(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &NoopResult{Context: d.newContext(p, req, env, imm)}
	d.deliver(p, req, delivery{cbtype: CallbackNoop, res: res, ext: true})
	return nil
}

func (d *Dispatcher) handleConfig(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	// Config replies are only meaningful to a live connection.
	if p == nil {
		return nil
	}
	res := &ConfigResult{Context: d.newContext(p, req, env, imm)}
	if imm == Success {
		res.Value = env.Value
	}
	d.deliver(p, req, delivery{cbtype: CallbackClusterConfig, res: res, ext: true})
	return nil
}

func (d *Dispatcher) handleSelectBucket(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &SelectBucketResult{Context: d.newContext(p, req, env, imm)}
	d.deliver(p, req, delivery{cbtype: CallbackSelectBucket, res: res, ext: true})
	return nil
}

func (d *Dispatcher) handleManifest(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &ManifestResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)
	if imm == Success {
		res.Value = env.Value
	}
	d.deliver(p, req, delivery{cbtype: CallbackGetManifest, res: res})
	return nil
}

func (d *Dispatcher) handleCollectionID(p *Pipeline, req *Request, env *mcbp.Envelope, imm ErrorKind) error {
	res := &CollectionIDResult{Context: d.newContext(p, req, env, imm)}
	res.errInfo.arm(env)

	if res.Status == Success {
		switch {
		case len(env.Extras) == 0:
			res.Status = ErrUnsupportedOperation
		case len(env.Extras) < getCIDExtras:
			return &mcbp.ProtocolError{
				Message: fmt.Sprintf("collection id extras are %d bytes, want %d", len(env.Extras), getCIDExtras),
			}
		default:
			c := mcbp.NewCursor(env.Extras)
			res.ManifestID = c.Uint64()
			res.CollectionID = c.Uint32()
		}
	}

	if req.Has(FlagExtended) {
		if scope, collection, ok := splitCollectionPath(string(req.Key)); ok {
			res.Scope = scope
			res.Collection = collection
		}
		d.deliver(p, req, delivery{cbtype: CallbackGetCollectionID, res: res, ext: true})
		return nil
	}

	d.deliver(p, req, delivery{cbtype: CallbackGetCollectionID, res: res})
	return nil
}
