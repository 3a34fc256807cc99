package refscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/tenxaligner/cluster"
)

func TestLoadFASTAConcatenatesAndDropsHeaders(t *testing.T) {
	r := strings.NewReader(">chr1 some description\nACGTACGT\nTTTT\n>chr2\nGGGG\n")
	g, err := LoadFASTA(r)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGTTTTTGGGG", string(g.Bases))
}

func TestGenomeAtWindow(t *testing.T) {
	g := &Genome{Bases: []byte("ACGTACGTACGT")}
	assert.Equal(t, []byte("ACGT"), g.At(0, 4))
	assert.Equal(t, []byte("CGTA"), g.At(1, 4))
	assert.Nil(t, g.At(10, 10), "window runs past the end")
	assert.Nil(t, g.At(-1, 4), "negative start")
	assert.Equal(t, int64(12), g.Len())
}

func TestKmerIndexLookupForwardStrand(t *testing.T) {
	// 30-base genome so a 20-mer at offset 5 is unambiguous.
	genome := &Genome{Bases: []byte("TTTTTACGTACGTACGTACGTACGTTTTTT")}
	idx := Build(genome)

	read := &cluster.Read{Name: "r", Bases: []byte("ACGTACGTACGTACGTACGT")}
	hits := idx.Lookup(read)
	require.NotEmpty(t, hits)

	found := false
	for _, h := range hits {
		if h.Direction == cluster.Forward && h.Location == cluster.GenomeLocation(5) {
			found = true
		}
	}
	assert.True(t, found, "expected a forward-strand hit at offset 5")
}

func TestKmerIndexLookupReverseComplementStrand(t *testing.T) {
	forward := "ACGTACGTACGTACGTACGTACGT"
	genome := &Genome{Bases: []byte("TTTTT" + forward + "TTTTT")}
	idx := Build(genome)

	rc := reverseComplement([]byte(forward))
	read := &cluster.Read{Name: "r", Bases: rc}
	hits := idx.Lookup(read)

	found := false
	for _, h := range hits {
		if h.Direction == cluster.ReverseComplement && h.Location == cluster.GenomeLocation(5) {
			found = true
		}
	}
	assert.True(t, found, "expected a reverse-complement hit at offset 5")
}

func TestKmerIndexLookupSkipsAmbiguousSeeds(t *testing.T) {
	genome := &Genome{Bases: []byte(strings.Repeat("ACGT", 10))}
	idx := Build(genome)

	read := &cluster.Read{Name: "r", Bases: []byte(strings.Repeat("N", KmerLength))}
	assert.Empty(t, idx.Lookup(read))
}

func TestComplementAndReverseComplement(t *testing.T) {
	assert.Equal(t, []byte("TGCA"), reverseComplement([]byte("TGCA")))
	assert.Equal(t, []byte("ACGT"), reverseComplement([]byte("ACGT")))
	assert.Equal(t, byte('N'), complement('N'))
}

func TestBoundedLevenshteinExactMatch(t *testing.T) {
	d, ok := boundedLevenshtein([]byte("ACGTACGT"), []byte("ACGTACGT"), 0)
	require.True(t, ok)
	assert.Equal(t, 0, d)
}

func TestBoundedLevenshteinWithinBound(t *testing.T) {
	d, ok := boundedLevenshtein([]byte("ACGTACGT"), []byte("ACGAACGT"), 2)
	require.True(t, ok)
	assert.Equal(t, 1, d)
}

func TestBoundedLevenshteinExceedsBoundReturnsFalse(t *testing.T) {
	_, ok := boundedLevenshtein([]byte("ACGTACGT"), []byte("TTTTTTTT"), 2)
	assert.False(t, ok)
}

func TestBoundedLevenshteinAllowsLongerReferenceWindow(t *testing.T) {
	// b padded with extra bases past len(a); best alignment still ends near
	// position len(a).
	d, ok := boundedLevenshtein([]byte("ACGT"), []byte("ACGTTTTT"), 1)
	require.True(t, ok)
	assert.Equal(t, 0, d)
}

func TestScorerScoresForwardAndReverseComplement(t *testing.T) {
	genome := &Genome{Bases: []byte("TTTTACGTACGTTTTT")}
	s := NewScorer(genome)

	fwd := &cluster.Read{Name: "f", Bases: []byte("ACGTACGT")}
	d, ok := s.Score(fwd, cluster.GenomeLocation(4), cluster.Forward, 0)
	require.True(t, ok)
	assert.Equal(t, 0, d)

	rcBases := reverseComplement([]byte("ACGTACGT"))
	rev := &cluster.Read{Name: "r", Bases: rcBases}
	d, ok = s.Score(rev, cluster.GenomeLocation(4), cluster.ReverseComplement, 0)
	require.True(t, ok)
	assert.Equal(t, 0, d)
}

func TestScorerRejectsOutOfBoundsLocation(t *testing.T) {
	genome := &Genome{Bases: []byte("ACGT")}
	s := NewScorer(genome)
	read := &cluster.Read{Name: "r", Bases: []byte("ACGTACGTACGT")}
	_, ok := s.Score(read, cluster.GenomeLocation(100), cluster.Forward, 2)
	assert.False(t, ok)
}
