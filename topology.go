package memd

import (
	"strings"

	"github.com/pior/memd/internal"
	"github.com/zeebo/xxh3"
)

// Topology answers the cluster-map questions result reconstruction needs.
type Topology interface {
	BucketName() string
	NumVBuckets() int
	// VBucketMaster returns the index of the node owning vb, or -1.
	VBucketMaster(vb uint16) int
}

// CollectionCache resolves collection ids to "scope.collection" paths.
type CollectionCache interface {
	IDToName(cid uint32) (string, bool)
}

// StaticTopology is a fixed cluster map. Keys hash to vbuckets with xxh3 and
// vbuckets are spread over nodes with jump consistent hashing.
type StaticTopology struct {
	bucket      string
	nodes       []string
	numVBuckets int
}

var _ Topology = (*StaticTopology)(nil)

func NewStaticTopology(bucket string, nodes []string, numVBuckets int) *StaticTopology {
	return &StaticTopology{
		bucket:      bucket,
		nodes:       nodes,
		numVBuckets: numVBuckets,
	}
}

func (t *StaticTopology) BucketName() string { return t.bucket }

func (t *StaticTopology) NumVBuckets() int { return t.numVBuckets }

// Nodes returns the node addresses in index order.
func (t *StaticTopology) Nodes() []string { return t.nodes }

func (t *StaticTopology) VBucketMaster(vb uint16) int {
	if len(t.nodes) == 0 || int(vb) >= t.numVBuckets {
		return -1
	}
	return internal.JumpHash(uint64(vb), len(t.nodes))
}

// VBucketForKey maps a document key to its vbucket.
func (t *StaticTopology) VBucketForKey(key []byte) uint16 {
	if t.numVBuckets <= 0 {
		return 0
	}
	return uint16(xxh3.Hash(key) % uint64(t.numVBuckets))
}

// NodeIndex returns the index of addr in the node list, or -1.
func (t *StaticTopology) NodeIndex(addr string) int {
	for i, n := range t.nodes {
		if n == addr {
			return i
		}
	}
	return -1
}

// StaticCollections is a fixed collection id table.
type StaticCollections map[uint32]string

var _ CollectionCache = StaticCollections(nil)

func (s StaticCollections) IDToName(cid uint32) (string, bool) {
	name, ok := s[cid]
	return name, ok
}

// splitCollectionPath splits "scope.collection" on the first dot.
func splitCollectionPath(path string) (scope, collection string, ok bool) {
	return strings.Cut(path, ".")
}
