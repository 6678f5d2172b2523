package internal

// JumpHash maps key to one of numBuckets buckets. Growing numBuckets by one
// only moves keys into the new bucket, so vbucket ownership stays stable when
// a node is appended to the cluster map.
// From https://github.com/dgryski/go-jump, Google's "Jump" consistent hash:
// https://arxiv.org/abs/1406.2294
func JumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}

	var b int64 = -1
	var j int64

	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}

	return int(b)
}
