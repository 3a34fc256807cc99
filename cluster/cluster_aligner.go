package cluster

import (
	"sort"

	"github.com/grailbio/tenxaligner/cluster/config"
)

// ClusterAligner drives N PairAligners through the three-stage pipeline for
// one barcode batch, applies the linked-read cluster prior, and leaves each
// pair's PairState.Final populated for the BatchDriver to emit.
//
// A ClusterAligner owns a BarcodeArena and a slice of PairAligners sized to
// opts.MaxBarcodeSize. Both are constructed once per worker and reused,
// reset, across barcodes — never reallocated mid-run. A Go slice of
// PairAligner pointers cannot be placed directly inside the BarcodeArena's
// mmap'd bytes (a PairAligner holds interior slices the garbage collector
// must track), so the arena's role here is narrower than in the source
// layout: nothing in this package allocates from it, and it holds only its
// protecting canaries. The PairAligner object graph, including each pair's
// seeding scratch, is an ordinary, allocate-once Go slice with the same
// allocate-once-reuse-many-times lifetime.
type ClusterAligner struct {
	arena    *BarcodeArena
	aligners []*PairAligner
	clusters *ClusterState
	opts     *config.Options
}

// NewClusterAligner constructs a ClusterAligner with opts.MaxBarcodeSize
// PairAligners, all bound to index and scorer.
func NewClusterAligner(arena *BarcodeArena, opts *config.Options, index SeedIndex, scorer EditDistanceScorer) *ClusterAligner {
	aligners := make([]*PairAligner, opts.MaxBarcodeSize)
	for i := range aligners {
		aligners[i] = NewPairAligner(index, scorer)
	}
	return &ClusterAligner{
		arena:    arena,
		aligners: aligners,
		clusters: NewClusterState(opts.MaxClusterSpan, opts.MinPairsPerCluster),
		opts:     opts,
	}
}

// scoreWindow derives the edit-distance window within which a secondary
// alignment is still reported, from the configured additional-edit-distance
// option. A negative configured value disables secondaries (the window is
// below the primary's own score, so nothing beyond the primary qualifies).
func (ca *ClusterAligner) scoreWindow() int {
	return ca.opts.MaxSecondaryAlignmentAdditionalEditDistance
}

// AlignStage1 runs PairAligner.Prepare on every active pair in the batch.
// It returns true only if no pair in the batch produced any candidate,
// meaning the whole batch can be short-circuited straight to NotFound.
func (ca *ClusterAligner) AlignStage1(batch *BarcodeBatch) (batchFinished bool) {
	anyCandidates := false
	for i := range batch.Pairs {
		p := &batch.Pairs[i]
		if p.Phase == phaseShortCircuited {
			continue
		}
		pa := ca.aligners[i]
		pa.Reset()
		noCandidates := pa.Prepare(&p.Reads, ca.opts.IntersectingAlignerMaxHits)
		if pa.poolExhausted {
			p.PoolExhausted = true
			p.Phase = phaseShortCircuited
			continue
		}
		if noCandidates {
			p.Phase = phaseShortCircuited
			continue
		}
		p.Phase = phaseSeeded
		anyCandidates = true
	}
	return !anyCandidates
}

// AlignStage2 runs score_paired on every pair still needing it. A pair
// whose buffer overflows is left marked not-finished (phasePairedOverflow)
// and AlignStage2 returns false; the caller grows that pair's buffer and
// calls again. AlignStage2 returns true once every pair has completed
// paired scoring.
func (ca *ClusterAligner) AlignStage2(batch *BarcodeBatch) (batchFinished bool) {
	allDone := true
	window := ca.scoreWindow()
	for i := range batch.Pairs {
		p := &batch.Pairs[i]
		if !p.needsStage2() {
			continue
		}
		if p.PairedBuf == nil {
			p.growPairedBuf(ca.opts.InitialSecondaryBufferSize)
		}
		pa := ca.aligners[i]
		n, status := pa.ScorePaired(&p.Reads, ca.opts.MinSpacing, ca.opts.MaxSpacing, window, p.MaxPairedSecondary, p.PairedBuf)
		if status == StageOverflow {
			p.growPairedBuf(0) // 0: already non-zero, so this doubles.
			p.Phase = phasePairedOverflow
			allDone = false
			continue
		}
		p.NPaired = n
		p.Phase = phasePairedDone
	}
	return allDone
}

// BuildClusters buckets every pair's paired primary candidate by
// maxClusterSpan and records which buckets have reached the
// minPairsPerCluster threshold. It must be called once, after AlignStage2
// has fully converged (no pair still overflowing) and before AlignStage3,
// so that cluster membership reflects the whole batch's paired candidates
// before any single-end promotion is considered.
func (ca *ClusterAligner) BuildClusters(batch *BarcodeBatch) {
	ca.clusters.Reset(ca.opts.MaxClusterSpan, ca.opts.MinPairsPerCluster)
	for i := range batch.Pairs {
		p := &batch.Pairs[i]
		if p.NPaired > 0 {
			ca.clusters.Add(p.PairedBuf[0].Location[0])
		}
	}
}

// AlignStage3 is AlignStage2's counterpart for score_single.
func (ca *ClusterAligner) AlignStage3(batch *BarcodeBatch) (batchFinished bool) {
	allDone := true
	window := ca.scoreWindow()
	for i := range batch.Pairs {
		p := &batch.Pairs[i]
		if !p.needsStage3() {
			continue
		}
		if p.SingleBuf == nil {
			p.growSingleBuf(ca.opts.InitialSecondaryBufferSize)
		}
		pa := ca.aligners[i]
		n0, n1, status := pa.ScoreSingle(&p.Reads, window, p.MaxSingleSecondary, p.SingleBuf)
		if status == StageOverflow {
			p.growSingleBuf(0)
			p.Phase = phaseSingleOverflow
			allDone = false
			continue
		}
		p.NSingle[0], p.NSingle[1] = n0, n1
		p.Phase = phaseSingleDone
	}
	return allDone
}

// GetLocationsScored returns the total number of edit-distance-kernel
// (LV) calls made across every PairAligner slot, for stats.
func (ca *ClusterAligner) GetLocationsScored() int64 {
	var total int64
	for _, pa := range ca.aligners {
		total += int64(pa.nLVCalls)
	}
	return total
}

// clusterOption is one candidate location — either a jointly-scored paired
// primary, or a single read's candidate — that happens to fall in a
// cluster, considered during Finalize's promotion decision.
type clusterOption struct {
	bucket int64
	count  int
	score  int
	result PairResult
}

// Finalize resolves every pair still awaiting a result (i.e. not already
// short-circuited) into its PairResult, applying cluster promotion and the
// forceSpacing contract, and marks the pair Emitted.
func (ca *ClusterAligner) Finalize(batch *BarcodeBatch) {
	for i := range batch.Pairs {
		p := &batch.Pairs[i]
		if p.Phase == phaseShortCircuited {
			p.Phase = phaseEmitted
			continue
		}
		if p.Phase == phaseEmitted {
			continue
		}
		ca.finalizePair(p)
		p.Phase = phaseEmitted
	}
}

func (ca *ClusterAligner) finalizePair(p *PairState) {
	var options []clusterOption

	havePaired := p.NPaired > 0
	var pairedPrimary PairResult
	if havePaired {
		pairedPrimary = p.PairedBuf[0]
		b := ca.clusters.BucketOf(pairedPrimary.Location[0])
		if ca.clusters.IsCluster(b) {
			options = append(options, clusterOption{
				bucket: b,
				count:  ca.clusters.CountAt(b),
				score:  pairedPrimary.Score[0] + pairedPrimary.Score[1],
				result: pairedPrimary,
			})
		}
	}
	for readIdx := 0; readIdx < NumReadsPerPair; readIdx++ {
		for _, sr := range p.SingleCandidates(readIdx) {
			b := ca.clusters.BucketOf(sr.Location)
			if !ca.clusters.IsCluster(b) {
				continue
			}
			promoted := pairedPrimary
			if !havePaired {
				promoted = PairResult{
					Status:   [NumReadsPerPair]AlignmentStatus{NotFound, NotFound},
					Location: [NumReadsPerPair]GenomeLocation{InvalidLocation, InvalidLocation},
				}
			}
			promoted.Status[readIdx] = sr.Status
			promoted.Location[readIdx] = sr.Location
			promoted.Direction[readIdx] = sr.Direction
			promoted.Score[readIdx] = sr.Score
			promoted.FromAlignTogether = false
			options = append(options, clusterOption{
				bucket: b,
				count:  ca.clusters.CountAt(b),
				score:  sr.Score,
				result: promoted,
			})
		}
	}

	if len(options) > 0 {
		// Prefer the cluster with the highest pair count; then lowest
		// edit-distance score.
		sort.Slice(options, func(i, j int) bool {
			if options[i].count != options[j].count {
				return options[i].count > options[j].count
			}
			return options[i].score < options[j].score
		})
		p.Final = options[0].result
		p.Final.AlignedAsPair = true
		ca.applyForceSpacing(p)
		return
	}

	if havePaired {
		p.Final = pairedPrimary
		p.Final.AlignedAsPair = IsOneLocation(pairedPrimary.Status[0]) && IsOneLocation(pairedPrimary.Status[1])
		ca.applyForceSpacing(p)
		return
	}

	// Neither a paired candidate nor a cluster-promoted single: fall back
	// to each read's own best single-read candidate, independently.
	final := PairResult{
		Status:   [NumReadsPerPair]AlignmentStatus{NotFound, NotFound},
		Location: [NumReadsPerPair]GenomeLocation{InvalidLocation, InvalidLocation},
	}
	for readIdx := 0; readIdx < NumReadsPerPair; readIdx++ {
		cands := p.SingleCandidates(readIdx)
		if len(cands) == 0 {
			continue
		}
		best := cands[0]
		final.Status[readIdx] = best.Status
		if len(cands) > 1 {
			final.Status[readIdx] = MultipleHits
		}
		final.Location[readIdx] = best.Location
		final.Direction[readIdx] = best.Direction
		final.Score[readIdx] = best.Score
	}
	p.Final = final
	ca.applyForceSpacing(p)
}

// applyForceSpacing enforces the spacing contract: when forceSpacing is
// set, a pair is only reported concordant if both reads individually have
// SingleHit status; otherwise the pair collapses to NotFound on both sides
// rather than reporting a one-sided alignment.
func (ca *ClusterAligner) applyForceSpacing(p *PairState) {
	if !ca.opts.ForceSpacing {
		return
	}
	if IsOneLocation(p.Final.Status[0]) && IsOneLocation(p.Final.Status[1]) {
		return
	}
	p.Final.Status = [NumReadsPerPair]AlignmentStatus{NotFound, NotFound}
	p.Final.Location = [NumReadsPerPair]GenomeLocation{InvalidLocation, InvalidLocation}
	p.Final.AlignedAsPair = false
}
