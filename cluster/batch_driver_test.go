package cluster

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/tenxaligner/cluster/config"
	"github.com/grailbio/tenxaligner/cluster/stats"
)

// sliceSupplier implements PairSupplier over an in-memory list, so
// BatchDriver tests don't need real I/O.
type sliceSupplier struct {
	items []sliceItem
	i     int
}

type sliceItem struct {
	a, b    Read
	barcode string
}

func (s *sliceSupplier) Next() (a, b Read, barcode string, ok bool, err error) {
	if s.i >= len(s.items) {
		return a, b, "", false, nil
	}
	it := s.items[s.i]
	s.i++
	return it.a, it.b, it.barcode, true, nil
}

// recordingWriter implements PairWriter, collecting every call it receives.
type recordingWriter struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	reads          [NumReadsPerPair]Read
	paired         []PairResult
	single         []SingleResult
	firstIsPrimary bool
}

func (w *recordingWriter) WritePairs(ctx context.Context, reads [NumReadsPerPair]Read, paired []PairResult, single []SingleResult, firstIsPrimary bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, recordedCall{reads, paired, single, firstIsPrimary})
	return nil
}

func driverTestOpts() *config.Options {
	o := config.DefaultOptions
	o.MaxBarcodeSize = 16
	o.MinReadLength = 4
	o.MaxAmbiguousBases = 1
	o.InitialSecondaryBufferSize = 2
	o.MaxSecondaryAlignmentAdditionalEditDistance = 0
	return &o
}

func TestBatchDriverUselessPairShortCircuitsToNotFound(t *testing.T) {
	opts := driverTestOpts()
	idx := &fakeIndex{hits: map[string][]CandidateLocation{}}
	arena := NewBarcodeArena(Reserve(64, opts.MaxBarcodeSize))
	aligner := NewClusterAligner(arena, opts, idx, &fakeScorer{})
	st := stats.New()
	w := &recordingWriter{}
	supplier := &sliceSupplier{items: []sliceItem{
		{a: Read{Name: "u/1", Bases: []byte("AA")}, b: Read{Name: "u/2", Bases: []byte("AA")}, barcode: "BC1"},
	}}
	d := NewBatchDriver(opts, supplier, w, st, arena, aligner, nil, nil)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, int64(2), st.TotalReads)
	assert.Equal(t, int64(2), st.UselessReads)
	require.Len(t, w.calls, 1)
	assert.Equal(t, NotFound, w.calls[0].paired0Status())
}

func (c recordedCall) paired0Status() AlignmentStatus {
	if len(c.paired) > 0 {
		return c.paired[0].Status[0]
	}
	return NotFound
}

func TestBatchDriverSplitsBatchesOnBarcodeChange(t *testing.T) {
	opts := driverTestOpts()
	idx := &fakeIndex{hits: map[string][]CandidateLocation{}}
	arena := NewBarcodeArena(Reserve(64, opts.MaxBarcodeSize))
	aligner := NewClusterAligner(arena, opts, idx, &fakeScorer{})
	st := stats.New()
	w := &recordingWriter{}
	mkRead := func(name string) Read { return Read{Name: name, Bases: []byte("ACGTACGT")} }
	supplier := &sliceSupplier{items: []sliceItem{
		{a: mkRead("p1/1"), b: mkRead("p1/2"), barcode: "BC1"},
		{a: mkRead("p2/1"), b: mkRead("p2/2"), barcode: "BC1"},
		{a: mkRead("p3/1"), b: mkRead("p3/2"), barcode: "BC2"},
	}}
	d := NewBatchDriver(opts, supplier, w, st, arena, aligner, nil, nil)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, int64(6), st.TotalReads)
	assert.Len(t, w.calls, 3)
}

func TestMatchingMateIDsIgnoresMateSuffix(t *testing.T) {
	assert.True(t, matchingMateIDs("frag/1", "frag/2"))
	assert.True(t, matchingMateIDs("frag.1", "frag.2"))
	assert.False(t, matchingMateIDs("fragA/1", "fragB/2"))
}

func TestBatchDriverFilteredCountedOnceNotTwice(t *testing.T) {
	opts := driverTestOpts()
	opts.FilterFlags = config.FilterBothMatesMatch
	idx := &fakeIndex{hits: map[string][]CandidateLocation{}}
	arena := NewBarcodeArena(Reserve(64, opts.MaxBarcodeSize))
	aligner := NewClusterAligner(arena, opts, idx, &fakeScorer{})
	st := stats.New()
	w := &recordingWriter{}
	// Useless pair: both reads too short, short-circuited to NotFound/NotFound,
	// which FilterBothMatesMatch rejects since neither side mapped.
	supplier := &sliceSupplier{items: []sliceItem{
		{a: Read{Name: "u/1", Bases: []byte("AA")}, b: Read{Name: "u/2", Bases: []byte("AA")}, barcode: "BC1"},
	}}
	d := NewBatchDriver(opts, supplier, w, st, arena, aligner, nil, nil)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, int64(1), st.Filtered)
	assert.Empty(t, w.calls)
}
