package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocAndReset(t *testing.T) {
	res := Reserve(200, 10)
	a := NewBarcodeArena(res)
	defer func() { require.NoError(t, a.Close()) }()

	s1 := a.Alloc(17)
	assert.Len(t, s1, 17)
	for _, b := range s1 {
		assert.Zero(t, b)
	}

	s2 := a.Alloc(3)
	assert.Len(t, s2, 3)

	a.CheckCanaries() // must not be fatal

	a.Reset()
	s3 := a.Alloc(17)
	assert.Len(t, s3, 17)
}

func TestArenaReserveSizeGrowsWithBatch(t *testing.T) {
	small := Reserve(100, 10)
	large := Reserve(100, 10000)
	assert.Greater(t, large.ScratchBytes, small.ScratchBytes)
}

func TestArenaCloseIdempotent(t *testing.T) {
	a := NewBarcodeArena(Reserve(64, 4))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
