package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog2Bucket(t *testing.T) {
	assert.Equal(t, 0, Log2Bucket(0))
	assert.Equal(t, 0, Log2Bucket(-5))
	assert.Equal(t, 1, Log2Bucket(1))
	assert.Equal(t, 2, Log2Bucket(2))
	assert.Equal(t, 2, Log2Bucket(3))
	assert.Equal(t, 3, Log2Bucket(4))
	assert.Equal(t, NumLog2Buckets-1, Log2Bucket(1<<62))
}

func TestAddDistanceSaturatesAndAbsValues(t *testing.T) {
	s := New()
	s.AddDistance(-10)
	s.AddDistance(10)
	assert.Equal(t, int64(2), s.DistanceHistogram[10])

	s.AddDistance(MaxDistance + 500)
	assert.Equal(t, int64(1), s.DistanceHistogram[MaxDistance])
}

func TestAddScorePairNormalizesLowerFirst(t *testing.T) {
	s := New()
	s.AddScorePair(5, 2)
	s.AddScorePair(2, 5)
	assert.Equal(t, int64(2), s.ScoreCounts[2][5])
	assert.Equal(t, int64(0), s.ScoreCounts[5][2])
}

func TestAddScorePairClampsToUpperBucket(t *testing.T) {
	s := New()
	s.AddScorePair(100, 200)
	assert.Equal(t, int64(1), s.ScoreCounts[numScoreBuckets-1][numScoreBuckets-1])
}

func TestAddMAPQClamps(t *testing.T) {
	s := New()
	s.AddMAPQ(-5)
	s.AddMAPQ(MaxMAPQ + 30)
	assert.Equal(t, int64(1), s.MAPQHistogram[0])
	assert.Equal(t, int64(1), s.MAPQHistogram[MaxMAPQ])
}

func TestAddTimingBinsByLog2(t *testing.T) {
	s := New()
	s.AddTiming(40, 8, 4, 2)
	assert.Equal(t, int64(40), s.MAPQByTime[Log2Bucket(8)])
	assert.Equal(t, int64(40), s.MAPQByCandidateCount[Log2Bucket(4)])
	assert.Equal(t, int64(8), s.TimeByHitBucket[Log2Bucket(2)])
}

func TestMergeAddsCountersAndHistograms(t *testing.T) {
	a := New()
	a.TotalReads = 10
	a.AddMAPQ(30)
	a.AddDistance(7)
	a.AddScorePair(1, 2)

	b := New()
	b.TotalReads = 5
	b.AddMAPQ(30)
	b.AddDistance(7)
	b.AddScorePair(1, 2)

	a.Merge(b)
	assert.Equal(t, int64(15), a.TotalReads)
	assert.Equal(t, int64(2), a.MAPQHistogram[30])
	assert.Equal(t, int64(2), a.DistanceHistogram[7])
	assert.Equal(t, int64(2), a.ScoreCounts[1][2])
}
