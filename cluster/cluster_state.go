package cluster

import "github.com/biogo/store/llrb"

// bucketEntry is one occupied maxClusterSpan-wide bucket in a ClusterState's
// llrb tree. count is a pointer so repeated inserts of the same bucket
// mutate the one count in place rather than creating tree duplicates.
type bucketEntry struct {
	bucket int64
	count  *int
}

// Compare implements llrb.Comparable, ordering buckets by their integer
// index.
func (k bucketEntry) Compare(c2 llrb.Comparable) int {
	k2 := c2.(bucketEntry)
	switch {
	case k.bucket < k2.bucket:
		return -1
	case k.bucket > k2.bucket:
		return 1
	default:
		return 0
	}
}

// ClusterState buckets the primary candidate locations of every pair in a
// barcode batch by maxClusterSpan and tracks how many pairs fall in each
// bucket. A bucket with at least minPairsPerCluster pairs is a cluster,
// exploiting the linked-read prior that reads sharing a barcode come from a
// small number of long source molecules.
//
// The bucket index is ordered in an llrb.Tree so that, given an arbitrary
// candidate location, the nearest occupied bucket can be found without a
// linear scan, the same way ShardInfo locates the enclosing shard for an
// arbitrary coordinate.
type ClusterState struct {
	tree               llrb.Tree
	counts             map[int64]*int
	span               int64
	minPairsPerCluster int
}

// NewClusterState constructs an empty ClusterState for the given bucket
// width (bases) and cluster-formation threshold.
func NewClusterState(span int64, minPairsPerCluster int) *ClusterState {
	cs := &ClusterState{}
	cs.Reset(span, minPairsPerCluster)
	return cs
}

// Reset discards all buckets and reconfigures span/threshold, reusing the
// ClusterState's backing map across barcodes.
func (cs *ClusterState) Reset(span int64, minPairsPerCluster int) {
	cs.tree = llrb.Tree{}
	if cs.counts == nil {
		cs.counts = make(map[int64]*int)
	} else {
		for k := range cs.counts {
			delete(cs.counts, k)
		}
	}
	cs.span = span
	cs.minPairsPerCluster = minPairsPerCluster
}

// BucketOf returns the bucket index a location falls into.
func (cs *ClusterState) BucketOf(loc GenomeLocation) int64 {
	if cs.span <= 0 {
		return int64(loc)
	}
	return int64(loc) / cs.span
}

// Add records one pair's primary candidate at loc and returns the bucket it
// landed in.
func (cs *ClusterState) Add(loc GenomeLocation) int64 {
	b := cs.BucketOf(loc)
	c, ok := cs.counts[b]
	if !ok {
		n := 0
		c = &n
		cs.counts[b] = c
		cs.tree.Insert(bucketEntry{bucket: b, count: c})
	}
	*c++
	return b
}

// CountAt returns the number of pairs recorded in bucket.
func (cs *ClusterState) CountAt(bucket int64) int {
	c, ok := cs.counts[bucket]
	if !ok {
		return 0
	}
	return *c
}

// IsCluster reports whether bucket has reached the cluster-formation
// threshold. Re-running IsCluster on the same candidate set is idempotent:
// Add is the only mutator, and it is monotonically increasing, so a bucket
// that has become a cluster never reverts.
func (cs *ClusterState) IsCluster(bucket int64) bool {
	return cs.CountAt(bucket) >= cs.minPairsPerCluster
}

// Nearest finds the occupied bucket at or below loc's bucket, using the
// tree's ordered Floor query. It returns found=false if no bucket at or
// below loc's has been populated yet.
func (cs *ClusterState) Nearest(loc GenomeLocation) (bucket int64, count int, found bool) {
	b := cs.BucketOf(loc)
	zero := 0
	v := cs.tree.Floor(bucketEntry{bucket: b, count: &zero})
	if v == nil {
		return 0, 0, false
	}
	e := v.(bucketEntry)
	return e.bucket, *e.count, true
}
