package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterStateBucketingAndThreshold(t *testing.T) {
	cs := NewClusterState(1000, 3)
	for i := 0; i < 2; i++ {
		cs.Add(GenomeLocation(100 + i))
	}
	bucket := cs.BucketOf(GenomeLocation(100))
	assert.False(t, cs.IsCluster(bucket), "below threshold")

	cs.Add(GenomeLocation(150))
	assert.True(t, cs.IsCluster(bucket), "threshold reached")
	assert.Equal(t, 3, cs.CountAt(bucket))
}

func TestClusterStateIsMonotoneAndIdempotent(t *testing.T) {
	cs := NewClusterState(1000, 2)
	b := cs.Add(GenomeLocation(50))
	cs.Add(GenomeLocation(60))
	assert.True(t, cs.IsCluster(b))
	// Re-checking without mutating never un-promotes the bucket.
	assert.True(t, cs.IsCluster(b))
	assert.True(t, cs.IsCluster(b))
}

func TestClusterStateDistinctBucketsDoNotMerge(t *testing.T) {
	cs := NewClusterState(1000, 2)
	b1 := cs.Add(GenomeLocation(500))
	b2 := cs.Add(GenomeLocation(500000))
	assert.NotEqual(t, b1, b2)
	assert.False(t, cs.IsCluster(b1))
	assert.False(t, cs.IsCluster(b2))
}

func TestClusterStateNearestFloor(t *testing.T) {
	cs := NewClusterState(1000, 1)
	cs.Add(GenomeLocation(500))
	bucket, count, found := cs.Nearest(GenomeLocation(1500))
	assert.True(t, found)
	assert.Equal(t, cs.BucketOf(500), bucket)
	assert.Equal(t, 1, count)

	_, _, found = cs.Nearest(GenomeLocation(-5000))
	assert.False(t, found)
}

func TestClusterStateResetClearsCounts(t *testing.T) {
	cs := NewClusterState(1000, 1)
	b := cs.Add(GenomeLocation(10))
	assert.True(t, cs.IsCluster(b))
	cs.Reset(1000, 1)
	assert.Equal(t, 0, cs.CountAt(b))
	assert.False(t, cs.IsCluster(b))
}
