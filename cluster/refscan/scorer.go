package refscan

import "github.com/grailbio/tenxaligner/cluster"

// Scorer is a bounded Levenshtein EditDistanceScorer over a Genome. It
// extends the matrix technique util.Distance uses for two arbitrary
// strings, but stops computing a row as soon as every cell in it already
// exceeds maxDistance, since the caller never needs an exact distance past
// its bound.
type Scorer struct {
	genome *Genome
}

// NewScorer returns a Scorer over g.
func NewScorer(g *Genome) *Scorer { return &Scorer{genome: g} }

// Score implements cluster.EditDistanceScorer.
func (s *Scorer) Score(read *cluster.Read, loc cluster.GenomeLocation, dir cluster.Direction, maxDistance int) (distance int, ok bool) {
	query := read.Bases
	if dir == cluster.ReverseComplement {
		query = reverseComplement(query)
	}
	ref := s.genome.At(loc, len(query)+maxDistance)
	if ref == nil {
		ref = s.genome.At(loc, len(query))
		if ref == nil {
			return 0, false
		}
	}
	return boundedLevenshtein(query, ref, maxDistance)
}

// boundedLevenshtein computes the edit distance between a and b, returning
// ok=false as soon as it can prove the true distance exceeds bound. b may
// be longer than a (the reference window is padded to absorb indels); the
// returned distance is the minimum over all alignments of a against any
// prefix of b at least len(a) long.
func boundedLevenshtein(a, b []byte, bound int) (int, bool) {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			v := del
			if ins < v {
				v = ins
			}
			if sub < v {
				v = sub
			}
			cur[j] = v
			if v < rowMin {
				rowMin = v
			}
		}
		if rowMin > bound {
			return 0, false
		}
		prev, cur = cur, prev
	}
	best := prev[n]
	for j := n + 1; j <= m; j++ {
		if prev[j] < best {
			best = prev[j]
		}
	}
	if best > bound {
		return 0, false
	}
	return best, true
}
