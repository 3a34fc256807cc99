// Package config holds the tunables for the cluster aligner core: the
// knobs a binary wiring this package together exposes as command-line
// flags, mirroring how the rest of this codebase separates an Opts struct
// (with a DefaultOpts value) from the flag.FlagSet that populates it.
package config

import "flag"

// FilterFlags is a bitset of output-filtering policies.
type FilterFlags uint32

const (
	// FilterBothMatesMatch requires both mates of a pair to individually
	// pass the output filter before either is written.
	FilterBothMatesMatch FilterFlags = 1 << 0
)

// Options holds every tunable of the cluster aligner core. Zero value is
// not meaningful; start from DefaultOptions and override individual fields.
type Options struct {
	// MinSpacing is the lower bound of a concordant paired insert size.
	MinSpacing int
	// MaxSpacing is the upper bound of a concordant paired insert size.
	MaxSpacing int
	// ForceSpacing, if true, rejects one-sided concordance: a pair is only
	// reported when both reads individually have SingleHit status.
	ForceSpacing bool

	// MaxBarcodeSize caps the number of pairs batched per barcode.
	MaxBarcodeSize int

	// MinPairsPerCluster is the cluster-formation threshold: a
	// maxClusterSpan-wide bucket becomes a cluster once it holds at least
	// this many pairs' primary candidates.
	MinPairsPerCluster int
	// MaxClusterSpan is the cluster bucket width, in reference bases.
	MaxClusterSpan int64

	// IntersectingAlignerMaxHits caps how many candidate locations
	// PairAligner.Prepare keeps per read; hits past the cap are dropped and
	// counted as skipped. Hits are not grouped by seed, so no individual
	// seed is singled out as "popular".
	IntersectingAlignerMaxHits int
	// MaxCandidatePoolSize is the per-pair candidate pool size. The cluster
	// package does not read this field: PairAligner's pool is the fixed
	// maxCandidatePoolSize (4096), whose exhaustion is fatal to that one
	// pair (reported NotFound), not to the batch.
	MaxCandidatePoolSize int

	// MaxSecondaryAlignmentAdditionalEditDistance is the edit-distance
	// window within which a secondary alignment is reported alongside the
	// primary. Negative disables secondary alignments entirely.
	MaxSecondaryAlignmentAdditionalEditDistance int
	// MaxSecondaryAlignmentsPerContig is the per-contig secondary cap. The
	// cluster package does not read this field; secondaries are not limited
	// per contig.
	MaxSecondaryAlignmentsPerContig int

	// InitialSecondaryBufferSize is the starting capacity (before any
	// doubling) of a pair's secondary-result buffers.
	InitialSecondaryBufferSize int

	// MinReadLength and MaxAmbiguousBases define a "useful" read: one
	// meeting the minimum length and not exceeding the ambiguous-base cap.
	MinReadLength     int
	MaxAmbiguousBases int

	// FilterFlags controls which pairs the output stage is allowed to drop.
	FilterFlags FilterFlags

	// QuicklyDropUnpairedReads is the drop-unpaired-reads input setting.
	// The cluster package does not read this field: PairSupplier always
	// yields complete pairs, so no unpaired read reaches BatchDriver.
	QuicklyDropUnpairedReads bool
	// IgnoreMismatchedIDs, if true, tolerates a mate-id mismatch instead of
	// treating it as a fatal input error.
	IgnoreMismatchedIDs bool

	// EnableStartupBarrier enables the one-shot, timing-diagnostic barrier
	// that makes every worker wait until all workers have finished their
	// initial arena allocation before any begins aligning.
	EnableStartupBarrier bool
}

// DefaultOptions holds the defaults named throughout the component
// contracts.
var DefaultOptions = Options{
	MinSpacing:                                   50,
	MaxSpacing:                                   1000,
	ForceSpacing:                                 false,
	MaxBarcodeSize:                               60000,
	MinPairsPerCluster:                           10,
	MaxClusterSpan:                               100000,
	IntersectingAlignerMaxHits:                   2000,
	MaxCandidatePoolSize:                         4096,
	MaxSecondaryAlignmentAdditionalEditDistance:  -1,
	MaxSecondaryAlignmentsPerContig:               64,
	InitialSecondaryBufferSize:                   32,
	MinReadLength:                                 50,
	MaxAmbiguousBases:                             10,
	FilterFlags:                                   0,
	QuicklyDropUnpairedReads:                      true,
	IgnoreMismatchedIDs:                           false,
	EnableStartupBarrier:                          false,
}

// RegisterFlags registers every Options field except FilterFlags as a
// command-line flag on fs, seeding defaults from o's current values (so
// callers can start from DefaultOptions, or from a value already partially
// configured). FilterFlags has no flag and keeps o's value.
//
// Flag naming mirrors the -maxClusterSpan / -minPairsPerCluster naming used
// by the source this core replaces. That source had a bug: its
// -maxClusterSpan flag wrote to minPairsPerCluster instead of
// maxClusterSpan. This is fixed here: -max-cluster-span routes to
// MaxClusterSpan.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&o.MinSpacing, "min-spacing", o.MinSpacing, "lower bound of concordant paired insert size")
	fs.IntVar(&o.MaxSpacing, "max-spacing", o.MaxSpacing, "upper bound of concordant paired insert size")
	fs.BoolVar(&o.ForceSpacing, "force-spacing", o.ForceSpacing, "reject one-sided concordance; require both mates SingleHit")
	fs.IntVar(&o.MaxBarcodeSize, "max-barcode-size", o.MaxBarcodeSize, "max pairs batched per barcode")
	fs.IntVar(&o.MinPairsPerCluster, "min-pairs-per-cluster", o.MinPairsPerCluster, "cluster-formation threshold")
	fs.Int64Var(&o.MaxClusterSpan, "max-cluster-span", o.MaxClusterSpan, "cluster bucket width, in reference bases")
	fs.IntVar(&o.IntersectingAlignerMaxHits, "intersecting-aligner-max-hits", o.IntersectingAlignerMaxHits, "seed-popularity cap per aligner")
	fs.IntVar(&o.MaxCandidatePoolSize, "max-candidate-pool-size", o.MaxCandidatePoolSize, "per-pair candidate pool size")
	fs.IntVar(&o.MaxSecondaryAlignmentAdditionalEditDistance, "max-secondary-edit-distance", o.MaxSecondaryAlignmentAdditionalEditDistance,
		"secondary-hit edit-distance window; negative disables secondaries")
	fs.IntVar(&o.MaxSecondaryAlignmentsPerContig, "max-secondary-per-contig", o.MaxSecondaryAlignmentsPerContig, "per-reference-contig secondary cap")
	fs.IntVar(&o.InitialSecondaryBufferSize, "initial-secondary-buffer-size", o.InitialSecondaryBufferSize, "starting capacity of per-pair secondary buffers")
	fs.IntVar(&o.MinReadLength, "min-read-length", o.MinReadLength, "minimum read length to be considered useful")
	fs.IntVar(&o.MaxAmbiguousBases, "max-ambiguous-bases", o.MaxAmbiguousBases, "maximum ambiguous-base count for a useful read")
	fs.BoolVar(&o.QuicklyDropUnpairedReads, "quickly-drop-unpaired-reads", o.QuicklyDropUnpairedReads, "discard reads lacking mate info during input")
	fs.BoolVar(&o.IgnoreMismatchedIDs, "ignore-mismatched-ids", o.IgnoreMismatchedIDs, "tolerate mate-id mismatches instead of failing")
	fs.BoolVar(&o.EnableStartupBarrier, "enable-startup-barrier", o.EnableStartupBarrier, "wait for all workers' initial allocation before any starts aligning")
}
