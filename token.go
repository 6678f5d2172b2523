package memd

import (
	"encoding/binary"

	"github.com/pior/memd/mcbp"
)

// TokenTable tracks the latest mutation token seen per vbucket on one
// connection. It is only touched from the connection's read goroutine.
type TokenTable struct {
	tokens []MutationToken
}

// Len returns the number of vbucket slots, zero until the first merge.
func (t *TokenTable) Len() int {
	return len(t.tokens)
}

// merge records tok, allocating numVBuckets slots on first use. Tokens for
// vbuckets outside the table are dropped.
func (t *TokenTable) merge(tok MutationToken, numVBuckets int) bool {
	if t.tokens == nil {
		if numVBuckets <= 0 {
			return false
		}
		t.tokens = make([]MutationToken, numVBuckets)
	}
	if int(tok.VBucket) >= len(t.tokens) {
		return false
	}
	t.tokens[tok.VBucket] = tok
	return true
}

// Get returns the last token recorded for vb. Zero tokens are absent.
func (t *TokenTable) Get(vb uint16) (MutationToken, bool) {
	if int(vb) >= len(t.tokens) {
		return MutationToken{}, false
	}
	tok := t.tokens[vb]
	if tok.IsZero() {
		return MutationToken{}, false
	}
	return tok, true
}

// decodeMutationToken reads a token from response extras. Only extras of
// exactly MutationTokenLen bytes carry one.
func decodeMutationToken(extras []byte, vb uint16) (MutationToken, bool) {
	if len(extras) != mcbp.MutationTokenLen {
		return MutationToken{}, false
	}
	return MutationToken{
		VBucket: vb,
		UUID:    binary.BigEndian.Uint64(extras[0:8]),
		Seqno:   binary.BigEndian.Uint64(extras[8:16]),
	}, true
}
