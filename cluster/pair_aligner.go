package cluster

import (
	"sort"

	farm "github.com/dgryski/go-farm"
)

// SeedIndex looks up candidate genome locations for a read by seed
// intersection. Index construction and the seed-and-extend mechanics
// themselves are out of scope for this package; callers supply a concrete
// implementation.
type SeedIndex interface {
	// Lookup returns every candidate location whose seeds intersect with
	// read, including locations that will later be rejected for exceeding
	// the popularity cap.
	Lookup(read *Read) []CandidateLocation
}

// EditDistanceScorer computes the bounded edit distance between a read and
// a candidate placement on the reference. It returns ok=false when the true
// distance exceeds maxDistance (the caller is only told the candidate did
// not pass, not the exact distance past the bound).
type EditDistanceScorer interface {
	Score(read *Read, loc GenomeLocation, dir Direction, maxDistance int) (distance int, ok bool)
}

// StageStatus is the outcome of one ClusterAligner stage call for a pair.
type StageStatus uint8

const (
	StageDone StageStatus = iota
	StageOverflow
)

func (s StageStatus) String() string {
	if s == StageOverflow {
		return "Overflow"
	}
	return "Done"
}

// maxCandidatePoolSize bounds the number of distinct candidate locations a
// single PairAligner will track per read per pair. It is the "pool" whose
// exhaustion is fatal to the pair (reported NotFound), distinct from the
// caller-owned secondary-result buffers, which merely regrow on overflow.
const maxCandidatePoolSize = 4096

// dedupSet is a fixed-capacity, open-addressed set of GenomeLocation+
// Direction pairs, used by PairAligner.Prepare to collapse duplicate seed
// hits before the popularity cap is applied. It never grows past
// maxCandidatePoolSize and allocates no heap memory after construction,
// matching the no-per-pair-allocation discipline of the hot path.
type dedupSet struct {
	keys [maxCandidatePoolSize]uint64
	used [maxCandidatePoolSize]bool
	n    int
}

func (d *dedupSet) reset() {
	if d.n == 0 {
		return
	}
	for i := range d.used {
		d.used[i] = false
	}
	d.n = 0
}

// insert returns true if (loc, dir) was not already present and there is
// room, false if it was a duplicate or the pool is exhausted.
func (d *dedupSet) insert(loc GenomeLocation, dir Direction) bool {
	key := uint64(loc)<<1 | uint64(dir&1)
	h := farm.Hash64WithSeed(nil, key) % maxCandidatePoolSize
	for i := 0; i < maxCandidatePoolSize; i++ {
		idx := (h + uint64(i)) % maxCandidatePoolSize
		if !d.used[idx] {
			if d.n >= maxCandidatePoolSize {
				return false
			}
			d.used[idx] = true
			d.keys[idx] = key
			d.n++
			return true
		}
		if d.keys[idx] == key {
			return false
		}
	}
	return false
}

// PairAligner aligns one read pair against the reference. It is a resumable
// state machine: Prepare must be called once per pair before ScorePaired,
// and ScorePaired before ScoreSingle; ScorePaired and ScoreSingle may each
// be called repeatedly (with a larger output buffer) until they return
// StageDone rather than StageOverflow.
//
// A PairAligner instance is reused across barcodes: Reset clears its
// per-pair scratch state without releasing memory, so the ClusterAligner
// that owns a slice of these never reallocates.
type PairAligner struct {
	index  SeedIndex
	scorer EditDistanceScorer

	seeds               [NumReadsPerPair][]CandidateLocation
	popularSeedsSkipped [NumReadsPerPair]int
	poolExhausted       bool

	dedup dedupSet

	nLVCalls int
}

// NewPairAligner constructs a PairAligner bound to the given index and
// scorer. NewClusterAligner builds one per slot, once per worker, and reuses
// it for every pair that occupies that slot.
func NewPairAligner(index SeedIndex, scorer EditDistanceScorer) *PairAligner {
	return &PairAligner{index: index, scorer: scorer}
}

// Reset clears per-pair state so the PairAligner can be reused for a
// different pair without reallocating its scratch buffers.
func (pa *PairAligner) Reset() {
	pa.seeds[0] = pa.seeds[0][:0]
	pa.seeds[1] = pa.seeds[1][:0]
	pa.popularSeedsSkipped[0] = 0
	pa.popularSeedsSkipped[1] = 0
	pa.poolExhausted = false
	pa.dedup.reset()
	pa.nLVCalls = 0
}

// Prepare extracts seeds from both reads of the pair and computes candidate
// locations via the index, deduplicating them and keeping at most
// intersectingAlignerMaxHits per read within the per-pair candidate pool
// cap. It returns true if neither read produced any candidate, meaning
// this pair cannot possibly align.
func (pa *PairAligner) Prepare(reads *[NumReadsPerPair]Read, intersectingAlignerMaxHits int) (noCandidates bool) {
	pa.dedup.reset()
	any := false
	for i := 0; i < NumReadsPerPair; i++ {
		raw := pa.index.Lookup(&reads[i])
		kept := pa.seeds[i][:0]
		for _, c := range raw {
			if len(kept) >= intersectingAlignerMaxHits {
				pa.popularSeedsSkipped[i]++
				continue
			}
			if !pa.dedup.insert(c.Location, c.Direction) {
				if pa.dedup.n >= maxCandidatePoolSize {
					pa.poolExhausted = true
				}
				continue
			}
			kept = append(kept, c)
		}
		pa.seeds[i] = kept
		if len(kept) > 0 {
			any = true
		}
	}
	return !any
}

// pairCandidate is a scored, unranked paired placement, scratch state local
// to one ScorePaired call.
type pairCandidate struct {
	loc   [NumReadsPerPair]GenomeLocation
	dir   [NumReadsPerPair]Direction
	score [NumReadsPerPair]int
	nAmbig [NumReadsPerPair]int
}

func (c *pairCandidate) sum() int { return c.score[0] + c.score[1] }

// ScorePaired evaluates paired candidate combinations within [minSpacing,
// maxSpacing] of each other and with opposite orientation, scores each with
// the edit-distance kernel, and writes the primary (best) result plus up to
// maxSecondary secondaries within scoreWindow of the primary into out.
//
// out must have capacity for at least 1+maxSecondary results. If more
// candidates pass the window than that, ScorePaired writes nothing and
// returns StageOverflow; the caller must grow out and call again.
func (pa *PairAligner) ScorePaired(reads *[NumReadsPerPair]Read, minSpacing, maxSpacing, scoreWindow, maxSecondary int, out []PairResult) (n int, status StageStatus) {
	var candidates []pairCandidate
	for _, a := range pa.seeds[0] {
		for _, b := range pa.seeds[1] {
			if a.Direction == b.Direction {
				continue // concordant pairs align to opposite strands.
			}
			d := a.Location.Distance(b.Location)
			if d < 0 {
				d = -d
			}
			if d < int64(minSpacing) || d > int64(maxSpacing) {
				continue
			}
			sa, oka := pa.score(&reads[0], a.Location, a.Direction)
			if !oka {
				continue
			}
			sb, okb := pa.score(&reads[1], b.Location, b.Direction)
			if !okb {
				continue
			}
			candidates = append(candidates, pairCandidate{
				loc:    [NumReadsPerPair]GenomeLocation{a.Location, b.Location},
				dir:    [NumReadsPerPair]Direction{a.Direction, b.Direction},
				score:  [NumReadsPerPair]int{sa, sb},
				nAmbig: [NumReadsPerPair]int{reads[0].NAmbig, reads[1].NAmbig},
			})
		}
	}
	if len(candidates) == 0 {
		return 0, StageDone
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := &candidates[i], &candidates[j]
		if ci.sum() != cj.sum() {
			return ci.sum() < cj.sum()
		}
		ai := ci.nAmbig[0] + ci.nAmbig[1]
		aj := cj.nAmbig[0] + cj.nAmbig[1]
		if ai != aj {
			return ai < aj
		}
		return ci.loc[0] < cj.loc[0]
	})
	primary := candidates[0]
	window := primary.sum() + scoreWindow
	accepted := candidates[:1]
	for _, c := range candidates[1:] {
		if c.sum() > window {
			break
		}
		accepted = append(accepted, c)
	}
	nSecondary := len(accepted) - 1
	if nSecondary > maxSecondary {
		return 0, StageOverflow
	}
	if len(out) < len(accepted) {
		return 0, StageOverflow
	}
	for i, c := range accepted {
		out[i] = PairResult{
			Status:            [NumReadsPerPair]AlignmentStatus{SingleHit, SingleHit},
			Location:          c.loc,
			Direction:         c.dir,
			Score:             saturateScores(c.score),
			FromAlignTogether: true,
		}
	}
	return len(accepted), StageDone
}

// ScoreSingle independently aligns each read when score_paired failed to
// establish concordance. out must have capacity 2*capPerRead: read 0's
// results occupy out[0:n0], read 1's occupy out[capPerRead:capPerRead+n1].
// Each read may contribute up to capPerRead results (its primary plus
// secondaries); exceeding that for either read is a StageOverflow, same as
// ScorePaired.
func (pa *PairAligner) ScoreSingle(reads *[NumReadsPerPair]Read, scoreWindow, capPerRead int, out []SingleResult) (n0, n1 int, status StageStatus) {
	if len(out) < 2*capPerRead {
		return 0, 0, StageOverflow
	}
	counts := [NumReadsPerPair]int{}
	for i := 0; i < NumReadsPerPair; i++ {
		type scored struct {
			loc   GenomeLocation
			dir   Direction
			score int
		}
		var hits []scored
		for _, c := range pa.seeds[i] {
			s, ok := pa.score(&reads[i], c.Location, c.Direction)
			if !ok {
				continue
			}
			hits = append(hits, scored{c.Location, c.Direction, s})
		}
		if len(hits) == 0 {
			continue
		}
		sort.Slice(hits, func(a, b int) bool {
			if hits[a].score != hits[b].score {
				return hits[a].score < hits[b].score
			}
			return hits[a].loc < hits[b].loc
		})
		window := hits[0].score + scoreWindow
		accepted := hits[:1]
		for _, h := range hits[1:] {
			if h.score > window {
				break
			}
			accepted = append(accepted, h)
		}
		if len(accepted) > capPerRead {
			return 0, 0, StageOverflow
		}
		offset := i * capPerRead
		for j, h := range accepted {
			out[offset+j] = SingleResult{
				Status:    SingleHit,
				Location:  h.loc,
				Direction: h.dir,
				Score:     saturateScore(h.score),
			}
		}
		counts[i] = len(accepted)
	}
	return counts[0], counts[1], StageDone
}

func (pa *PairAligner) score(read *Read, loc GenomeLocation, dir Direction) (int, bool) {
	pa.nLVCalls++
	return pa.scorer.Score(read, loc, dir, MaxScore)
}

func saturateScore(s int) int {
	if s > MaxScore {
		return MaxScore
	}
	return s
}

func saturateScores(s [NumReadsPerPair]int) [NumReadsPerPair]int {
	return [NumReadsPerPair]int{saturateScore(s[0]), saturateScore(s[1])}
}
