// Package refscan is a minimal, in-memory SeedIndex and EditDistanceScorer
// pair for exercising the cluster package end to end without a production
// seed-and-extend index or edit-distance kernel — both of those are
// caller-supplied collaborators the cluster package deliberately doesn't
// implement. refscan is sized for smoke-testing and the command-line demo
// binary, not for aligning against a real genome.
package refscan

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/tenxaligner/cluster"
)

// Genome is a single concatenated reference sequence held entirely in
// memory.
type Genome struct {
	Bases []byte
}

// LoadFASTA reads every record in r and concatenates their sequence lines
// into one Genome, in file order, dropping header lines. It is a
// convenience loader, not a general-purpose FASTA decoder: it does not
// track contig boundaries or support random access by name.
func LoadFASTA(r io.Reader) (*Genome, error) {
	var sb strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 || line[0] == '>' {
			continue
		}
		sb.WriteString(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("refscan: reading fasta: %w", err)
	}
	return &Genome{Bases: []byte(sb.String())}, nil
}

// At returns the n-byte window of the genome starting at loc, or nil if the
// window runs past either end of the sequence.
func (g *Genome) At(loc cluster.GenomeLocation, n int) []byte {
	start := int64(loc)
	if start < 0 || start+int64(n) > int64(len(g.Bases)) {
		return nil
	}
	return g.Bases[start : start+int64(n)]
}

func (g *Genome) Len() int64 { return int64(len(g.Bases)) }
