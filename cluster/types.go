package cluster

import "fmt"

// NumReadsPerPair is the number of reads in one sequenced fragment.
const NumReadsPerPair = 2

// MaxScore is the saturation point for an edit-distance score.
const MaxScore = 15

// MaxDistance is the saturation point for a histogrammed genomic distance.
const MaxDistance = 1000

// MaxMAPQ is the largest mapping-quality value this package produces.
const MaxMAPQ = 70

// GenomeLocation is a coordinate into a concatenated reference: a
// non-negative offset from the start of the first contig.
type GenomeLocation int64

// InvalidLocation is the sentinel GenomeLocation meaning "no location".
const InvalidLocation GenomeLocation = -1

// Valid reports whether loc is not the InvalidLocation sentinel.
func (loc GenomeLocation) Valid() bool {
	return loc != InvalidLocation
}

// Distance returns loc-other as a signed difference. Callers that only care
// about magnitude should take the absolute value of the result.
func (loc GenomeLocation) Distance(other GenomeLocation) int64 {
	return int64(loc) - int64(other)
}

func (loc GenomeLocation) String() string {
	if !loc.Valid() {
		return "INVALID_LOCATION"
	}
	return fmt.Sprintf("%d", int64(loc))
}

// Direction is the strand a read aligned to.
type Direction uint8

const (
	Forward Direction = iota
	ReverseComplement
)

func (d Direction) String() string {
	if d == ReverseComplement {
		return "RC"
	}
	return "FWD"
}

// AlignmentStatus is the outcome of aligning one read (or one side of a
// pair) against the reference.
type AlignmentStatus uint8

const (
	NotFound AlignmentStatus = iota
	SingleHit
	MultipleHits
	UnknownAlignment
)

func (s AlignmentStatus) String() string {
	switch s {
	case NotFound:
		return "NotFound"
	case SingleHit:
		return "SingleHit"
	case MultipleHits:
		return "MultipleHits"
	default:
		return "UnknownAlignment"
	}
}

// IsOneLocation reports whether status names exactly one genome location,
// i.e. status == SingleHit.
func IsOneLocation(status AlignmentStatus) bool {
	return status == SingleHit
}

// Read is an immutable sequence plus the metadata the aligner needs. The
// caller owns decoding; Read never outlives the BarcodeBatch it is part of.
type Read struct {
	Name      string
	Bases     []byte
	Qualities []byte
	NAmbig    int // count of ambiguous (N) bases
	Direction Direction
}

// Len returns the read length in bases.
func (r *Read) Len() int {
	return len(r.Bases)
}

func (r *Read) String() string {
	return fmt.Sprintf("Read{%s, len=%d, nAmbig=%d, dir=%s}", r.Name, r.Len(), r.NAmbig, r.Direction)
}

// PairResult is the final, emitted outcome for one read pair.
type PairResult struct {
	Status    [NumReadsPerPair]AlignmentStatus
	Location  [NumReadsPerPair]GenomeLocation
	Direction [NumReadsPerPair]Direction
	Score     [NumReadsPerPair]int
	MAPQ      [NumReadsPerPair]int

	// FromAlignTogether is true when the pair was scored jointly by
	// score_paired rather than as two independent singles.
	FromAlignTogether bool
	// AlignedAsPair is the final classification: both reads concordant, or
	// promoted into the same cluster.
	AlignedAsPair bool

	// Instrumentation, merged additively into AlignerStats at emit time.
	NanosInAlignTogether int64
	NSmallHits           int
	NLVCalls             int
}

func (p *PairResult) String() string {
	return fmt.Sprintf("PairResult{%s@%s/%s@%s, scores=%v, mapq=%v, pair=%v}",
		p.Status[0], p.Location[0], p.Status[1], p.Location[1], p.Score, p.MAPQ, p.AlignedAsPair)
}

// SingleResult is the alignment outcome for one read considered alone.
type SingleResult struct {
	Status    AlignmentStatus
	Location  GenomeLocation
	Direction Direction
	Score     int
	MAPQ      int
}

func (s *SingleResult) String() string {
	return fmt.Sprintf("SingleResult{%s@%s, score=%d, mapq=%d}", s.Status, s.Location, s.Score, s.MAPQ)
}

// CandidateLocation is one seed-and-extend hit surfaced by prepare(), before
// it has been scored.
type CandidateLocation struct {
	Location  GenomeLocation
	Direction Direction
}
