package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairStateResetClearsPriorResult(t *testing.T) {
	var ps PairState
	ps.growPairedBuf(4)
	ps.NPaired = 2
	ps.Final.Status[0] = SingleHit

	ps.reset(Read{Name: "a"}, Read{Name: "b"}, true, false)
	assert.Equal(t, phaseFresh, ps.Phase)
	assert.Equal(t, 0, ps.NPaired)
	assert.Equal(t, NotFound, ps.Final.Status[0])
	assert.NotNil(t, ps.PairedBuf, "buffer capacity is preserved across reuse")
}

func TestPairStateIsUseful(t *testing.T) {
	var ps PairState
	ps.reset(Read{}, Read{}, false, false)
	assert.False(t, ps.IsUseful())
	ps.reset(Read{}, Read{}, true, false)
	assert.True(t, ps.IsUseful())
}

func TestGrowPairedBufDoublesMonotonically(t *testing.T) {
	var ps PairState
	ps.growPairedBuf(8)
	assert.Equal(t, 8, ps.MaxPairedSecondary)
	ps.growPairedBuf(0)
	assert.Equal(t, 16, ps.MaxPairedSecondary)
	ps.growPairedBuf(0)
	assert.Equal(t, 32, ps.MaxPairedSecondary)
	assert.Len(t, ps.PairedBuf, 33)
}

func TestGrowSingleBufDoublesMonotonicallyAndLayout(t *testing.T) {
	var ps PairState
	ps.growSingleBuf(4)
	assert.Equal(t, 4, ps.MaxSingleSecondary)
	assert.Len(t, ps.SingleBuf, NumReadsPerPair*4)
	ps.growSingleBuf(0)
	assert.Equal(t, 8, ps.MaxSingleSecondary)
	assert.Len(t, ps.SingleBuf, NumReadsPerPair*8)
}

func TestSingleCandidatesSlicesCorrectRegion(t *testing.T) {
	var ps PairState
	ps.growSingleBuf(4)
	ps.SingleBuf[0] = SingleResult{Location: 1}
	ps.SingleBuf[4] = SingleResult{Location: 2}
	ps.NSingle[0] = 1
	ps.NSingle[1] = 1

	assert.Equal(t, GenomeLocation(1), ps.SingleCandidates(0)[0].Location)
	assert.Equal(t, GenomeLocation(2), ps.SingleCandidates(1)[0].Location)
}

func TestNeedsStageTransitions(t *testing.T) {
	var ps PairState
	ps.Phase = phaseSeeded
	assert.True(t, ps.needsStage2())
	assert.False(t, ps.needsStage3())

	ps.Phase = phasePairedOverflow
	assert.True(t, ps.needsStage2())

	ps.Phase = phasePairedDone
	assert.True(t, ps.needsStage3())
	assert.False(t, ps.needsStage2())

	ps.Phase = phaseSingleOverflow
	assert.True(t, ps.needsStage3())
}

func TestBarcodeBatchResetKeepsCapacity(t *testing.T) {
	var b BarcodeBatch
	b.Pairs = make([]PairState, 0, 16)
	b.Pairs = append(b.Pairs, PairState{}, PairState{})
	b.Reset("AACCGG")
	assert.Equal(t, "AACCGG", b.Barcode)
	assert.Len(t, b.Pairs, 0)
	assert.Equal(t, 16, cap(b.Pairs))
}
