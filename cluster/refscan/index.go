package refscan

import (
	"github.com/grailbio/tenxaligner/cluster"
)

// KmerLength is the fixed seed length refscan indexes on.
const KmerLength = 20

// maxHitsPerKmer bounds how many locations one k-mer entry may record
// before refscan treats it as saturated and stops recording further hits
// for it; this is refscan's own bound, independent of the caller's
// intersectingAlignerMaxHits, which is applied later by PairAligner.Prepare.
const maxHitsPerKmer = 100000

// KmerIndex is a brute-force, exact-match seed index over one Genome: every
// distinct forward-strand KmerLength-mer maps to the list of offsets it
// occurs at; Lookup covers the reverse strand by probing with reverse
// complements.
type KmerIndex struct {
	genome *Genome
	table  map[string][]cluster.GenomeLocation
}

// Build indexes every KmerLength-mer of g, forward strand only; reverse
// complement candidates are produced at Lookup time by probing the index
// with the query's own reverse complement instead of doubling the table.
func Build(g *Genome) *KmerIndex {
	idx := &KmerIndex{genome: g, table: make(map[string][]cluster.GenomeLocation)}
	n := len(g.Bases)
	for i := 0; i+KmerLength <= n; i++ {
		kmer := g.Bases[i : i+KmerLength]
		if hasAmbiguous(kmer) {
			continue
		}
		key := string(kmer)
		hits := idx.table[key]
		if len(hits) >= maxHitsPerKmer {
			continue
		}
		idx.table[key] = append(hits, cluster.GenomeLocation(i))
	}
	return idx
}

// Lookup implements cluster.SeedIndex: it seeds read at non-overlapping
// KmerLength windows, probes the index with both the seed and its reverse
// complement, and returns every distinct (location, direction) hit.
func (idx *KmerIndex) Lookup(read *cluster.Read) []cluster.CandidateLocation {
	var out []cluster.CandidateLocation
	bases := read.Bases
	for off := 0; off+KmerLength <= len(bases); off += KmerLength {
		seed := bases[off : off+KmerLength]
		if hasAmbiguous(seed) {
			continue
		}
		for _, loc := range idx.table[string(seed)] {
			start := int64(loc) - int64(off)
			if start < 0 {
				continue
			}
			out = append(out, cluster.CandidateLocation{Location: cluster.GenomeLocation(start), Direction: cluster.Forward})
		}
		rc := reverseComplement(seed)
		for _, loc := range idx.table[string(rc)] {
			// A hit for the seed's reverse complement means the read aligns,
			// reverse-complemented, such that this seed's window ends at loc+K;
			// the read's start is offset from the far end.
			readLen := len(bases)
			start := int64(loc) - int64(readLen-off-KmerLength)
			if start < 0 {
				continue
			}
			out = append(out, cluster.CandidateLocation{Location: cluster.GenomeLocation(start), Direction: cluster.ReverseComplement})
		}
	}
	return out
}

func hasAmbiguous(seq []byte) bool {
	for _, b := range seq {
		switch b {
		case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		default:
			return true
		}
	}
	return false
}

func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complement(b)
	}
	return out
}

func complement(b byte) byte {
	switch b {
	case 'A':
		return 'T'
	case 'T':
		return 'A'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'a':
		return 't'
	case 't':
		return 'a'
	case 'c':
		return 'g'
	case 'g':
		return 'c'
	default:
		return 'N'
	}
}
