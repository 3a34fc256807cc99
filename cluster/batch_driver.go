package cluster

import (
	"context"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/minio/highwayhash"

	"github.com/grailbio/tenxaligner/cluster/config"
	"github.com/grailbio/tenxaligner/cluster/stats"
)

// PairSupplier is the input collaborator: a thread-safe generator of read
// pairs, grouped by barcode when the input format supports it. Decoding the
// underlying sequence format is out of scope for this package.
type PairSupplier interface {
	// Next returns the next read pair and the barcode it carries. ok is
	// false once the stream is exhausted.
	Next() (a, b Read, barcode string, ok bool, err error)
}

// PairWriter is the output collaborator. pairedResults and singleResults
// are the accepted candidates from score_paired/score_single — already
// ordered primary-first — for the pair described by reads; singleResults
// holds read 0's candidates followed by read 1's. No wire format is
// specified here.
type PairWriter interface {
	WritePairs(ctx context.Context, reads [NumReadsPerPair]Read, pairedResults []PairResult, singleResults []SingleResult, firstIsPrimary bool) error
}

// maxStageRetries bounds the overflow/doubling loop as a defensive backstop
// against a buggy SeedIndex or EditDistanceScorer that never converges; the
// candidate pool is finite (maxCandidatePoolSize), so a real overflow loop
// converges in well under this many doublings.
const maxStageRetries = 48

// StartupBarrier is the optional, timing-diagnostic one-shot barrier that
// makes every worker wait until all workers have finished their initial
// (large) arena allocation before any begins aligning, so page-fault storms
// from the allocation don't skew per-worker timing measurements.
type StartupBarrier struct {
	wg sync.WaitGroup
}

// NewStartupBarrier returns a barrier for the given number of workers.
func NewStartupBarrier(numWorkers int) *StartupBarrier {
	b := &StartupBarrier{}
	b.wg.Add(numWorkers)
	return b
}

// Arrived signals that this worker has finished its initial allocation.
func (b *StartupBarrier) Arrived() { b.wg.Done() }

// Wait blocks until every worker has called Arrived.
func (b *StartupBarrier) Wait() { b.wg.Wait() }

// BatchDriver is the per-worker-thread loop: pull pairs from the input
// supplier, partition them into barcode batches, run a ClusterAligner over
// each batch, hand results to the output writer, and maintain per-pair
// secondary-buffer growth. Exactly one BatchDriver, one BarcodeArena and the
// N PairAligners within it are owned by one worker; there is no shared
// mutable state between workers.
type BatchDriver struct {
	opts     *config.Options
	supplier PairSupplier
	writer   PairWriter
	stats    *stats.Stats
	arena    *BarcodeArena
	aligner  *ClusterAligner
	hib      HibernationHint
	barrier  *StartupBarrier

	batch   BarcodeBatch
	pending *pendingPair

	barcodeHashKey [highwayhash.Size]byte
}

type pendingPair struct {
	a, b    Read
	barcode string
}

// NewBatchDriver constructs a worker's BatchDriver. arena and aligner must
// already be constructed and sized for opts.MaxBarcodeSize; they are
// reused, reset, across every barcode this driver processes. barrier may be
// nil (the common case: opts.EnableStartupBarrier false).
func NewBatchDriver(opts *config.Options, supplier PairSupplier, writer PairWriter, st *stats.Stats, arena *BarcodeArena, aligner *ClusterAligner, hib HibernationHint, barrier *StartupBarrier) *BatchDriver {
	if hib == nil {
		hib = NoopHibernationHint{}
	}
	d := &BatchDriver{
		opts:     opts,
		supplier: supplier,
		writer:   writer,
		stats:    st,
		arena:    arena,
		aligner:  aligner,
		hib:      hib,
		barrier:  barrier,
	}
	d.batch.Pairs = make([]PairState, 0, opts.MaxBarcodeSize)
	return d
}

// Run processes batches from the supplier until it signals end-of-stream,
// then tears down the arena. Run is the entire lifetime of one worker
// thread.
func (d *BatchDriver) Run(ctx context.Context) error {
	release := d.hib.Acquire()
	defer release()

	if d.barrier != nil {
		d.barrier.Arrived()
		d.barrier.Wait()
	}

	defer func() {
		if err := d.arena.Close(); err != nil {
			log.Fatalf("cluster: closing arena: %v", err)
		}
	}()

	for {
		eof := d.ingestBatch(ctx)
		if len(d.batch.Pairs) > 0 {
			d.alignBatch()
			d.emitBatch(ctx)
		}
		if eof {
			return nil
		}
	}
}

func (d *BatchDriver) barcodeFingerprint(barcode string) [highwayhash.Size]byte {
	return highwayhash.Sum(gunsafe.StringToBytes(barcode), d.barcodeHashKey[:])
}

// ingestBatch pulls pairs from the supplier until the barcode changes, the
// batch cap is reached, or the supplier is exhausted. It returns true if
// the supplier reached end-of-stream while filling this batch (the batch
// may still be non-empty).
func (d *BatchDriver) ingestBatch(ctx context.Context) (eof bool) {
	d.batch.Reset("")
	var curFingerprint [highwayhash.Size]byte
	haveFirst := false

	if d.pending != nil {
		d.batch.Barcode = d.pending.barcode
		curFingerprint = d.barcodeFingerprint(d.pending.barcode)
		haveFirst = true
		d.admitPair(d.pending.a, d.pending.b)
		d.pending = nil
	}

	for len(d.batch.Pairs) < d.opts.MaxBarcodeSize {
		a, b, barcode, ok, err := d.supplier.Next()
		if err != nil {
			log.Fatalf("cluster: pair supplier error: %v", err)
		}
		if !ok {
			return true
		}
		if !matchingMateIDs(a.Name, b.Name) && !d.opts.IgnoreMismatchedIDs {
			log.Fatalf("cluster: mismatched mate identifiers %q and %q", a.Name, b.Name)
		}
		fp := d.barcodeFingerprint(barcode)
		if !haveFirst {
			d.batch.Barcode = barcode
			curFingerprint = fp
			haveFirst = true
		} else if fp != curFingerprint {
			d.pending = &pendingPair{a: a, b: b, barcode: barcode}
			return false
		}
		d.admitPair(a, b)
	}
	return false
}

// admitPair filters obviously-useless pairs straight to NotFound without
// ever entering the three-stage pipeline, and otherwise appends a fresh
// PairState to the batch.
func (d *BatchDriver) admitPair(a, b Read) {
	usefulA := isUsefulRead(&a, d.opts)
	usefulB := isUsefulRead(&b, d.opts)
	d.stats.TotalReads += 2
	if !usefulA && !usefulB {
		d.stats.UselessReads += 2
		d.emitNotFound(a, b)
		return
	}

	var p *PairState
	if len(d.batch.Pairs) < cap(d.batch.Pairs) {
		d.batch.Pairs = d.batch.Pairs[:len(d.batch.Pairs)+1]
		p = &d.batch.Pairs[len(d.batch.Pairs)-1]
	} else {
		d.batch.Pairs = append(d.batch.Pairs, PairState{})
		p = &d.batch.Pairs[len(d.batch.Pairs)-1]
	}
	p.reset(a, b, usefulA, usefulB)
	p.MaxPairedSecondary = 0
	p.MaxSingleSecondary = 0
	p.PairedBuf = nil
	p.SingleBuf = nil
}

// emitNotFound writes a pair directly to NotFound (subject to the output
// filter) without entering the pipeline, and counts it exactly once in
// filtered when the filter drops it.
func (d *BatchDriver) emitNotFound(a, b Read) {
	d.stats.NotFound += 2
	final := PairResult{
		Status:   [NumReadsPerPair]AlignmentStatus{NotFound, NotFound},
		Location: [NumReadsPerPair]GenomeLocation{InvalidLocation, InvalidLocation},
	}
	if !passesOutputFilter(final, d.opts) {
		d.stats.Filtered++
		return
	}
	if err := d.writer.WritePairs(context.Background(), [NumReadsPerPair]Read{a, b}, nil, nil, true); err != nil {
		log.Fatalf("cluster: writer error: %v", err)
	}
}

// alignBatch drives the admitted pairs through the three-stage pipeline,
// growing overflowed buffers by doubling between retries, and finalizes
// every pair's result including cluster promotion.
func (d *BatchDriver) alignBatch() {
	if d.aligner.AlignStage1(&d.batch) {
		d.aligner.Finalize(&d.batch)
		return
	}

	retries := 0
	for !d.aligner.AlignStage2(&d.batch) {
		retries++
		if retries > maxStageRetries {
			log.Fatalf("cluster: stage 2 buffer growth did not converge after %d retries", maxStageRetries)
		}
	}
	d.aligner.BuildClusters(&d.batch)
	retries = 0
	for !d.aligner.AlignStage3(&d.batch) {
		retries++
		if retries > maxStageRetries {
			log.Fatalf("cluster: stage 3 buffer growth did not converge after %d retries", maxStageRetries)
		}
	}
	d.aligner.Finalize(&d.batch)
}

// emitBatch writes every pair's result in ingestion order (within-barcode
// output order equals ingestion order) and folds the pair into stats, then
// resets the arena for the next barcode. The ClusterAligner resets its own
// per-pair and cluster state during the next batch's AlignStage1 and
// BuildClusters.
func (d *BatchDriver) emitBatch(ctx context.Context) {
	for i := range d.batch.Pairs {
		p := &d.batch.Pairs[i]
		d.updateStats(p)

		if !passesOutputFilter(p.Final, d.opts) {
			d.stats.Filtered++
			continue
		}
		var pairedResults []PairResult
		if p.NPaired > 0 {
			pairedResults = p.PairedBuf[:p.NPaired]
		}
		var singleResults []SingleResult
		if n := p.NSingle[0] + p.NSingle[1]; n > 0 {
			singleResults = make([]SingleResult, 0, n)
			singleResults = append(singleResults, p.SingleCandidates(0)...)
			singleResults = append(singleResults, p.SingleCandidates(1)...)
		}
		firstIsPrimary := p.Final.Status[0] != NotFound
		if err := d.writer.WritePairs(ctx, p.Reads, pairedResults, singleResults, firstIsPrimary); err != nil {
			log.Fatalf("cluster: writer error: %v", err)
		}
	}
	d.stats.LVCalls += d.aligner.GetLocationsScored()
	d.arena.Reset()
}

func (d *BatchDriver) updateStats(p *PairState) {
	for readIdx := 0; readIdx < NumReadsPerPair; readIdx++ {
		switch p.Final.Status[readIdx] {
		case NotFound:
			d.stats.NotFound++
		case SingleHit:
			d.stats.SingleHits++
		case MultipleHits:
			d.stats.MultiHits++
		}
	}
	if p.Final.AlignedAsPair {
		d.stats.AlignedAsPairs += 2
	}
	if p.Final.Direction[0] == p.Final.Direction[1] {
		d.stats.SameComplement++
	}
	if IsOneLocation(p.Final.Status[0]) && IsOneLocation(p.Final.Status[1]) {
		d.stats.AddDistance(p.Final.Location[0].Distance(p.Final.Location[1]))
		d.stats.AddScorePair(p.Final.Score[0], p.Final.Score[1])
	}
	mapq := (p.Final.MAPQ[0] + p.Final.MAPQ[1]) / 2
	d.stats.AddMAPQ(mapq)
	d.stats.AddTiming(mapq, p.Final.NanosInAlignTogether, p.Final.NSmallHits, p.Final.NLVCalls)
	if p.NPaired > 1 {
		d.stats.ExtraAlignments += int64(p.NPaired - 1)
	}
}

// passesOutputFilter applies filterFlags. The zero value (no bits set)
// passes every pair; FilterBothMatesMatch requires both mates to have
// mapped.
func passesOutputFilter(final PairResult, opts *config.Options) bool {
	if opts.FilterFlags&config.FilterBothMatesMatch != 0 {
		return final.Status[0] != NotFound && final.Status[1] != NotFound
	}
	return true
}

// isUsefulRead reports whether read meets the minimum length and
// ambiguous-base constraints.
func isUsefulRead(r *Read, opts *config.Options) bool {
	return r.Len() >= opts.MinReadLength && r.NAmbig <= opts.MaxAmbiguousBases
}

// matchingMateIDs reports whether two read names identify the same
// fragment, modulo a trailing "/1"/"/2" or ".1"/".2" mate suffix.
func matchingMateIDs(nameA, nameB string) bool {
	return baseReadName(nameA) == baseReadName(nameB)
}

func baseReadName(name string) string {
	if i := strings.LastIndexAny(name, "/."); i > 0 && i == len(name)-2 {
		suffix := name[i+1:]
		if suffix == "1" || suffix == "2" {
			return name[:i]
		}
	}
	return name
}
