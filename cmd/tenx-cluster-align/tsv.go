package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/grailbio/tenxaligner/cluster"
)

// rawPair is one line of the demo input format, decoded but not yet
// admitted into a BarcodeBatch.
type rawPair struct {
	a, b    cluster.Read
	barcode string
}

// loadBatches scans r's tab-separated lines (barcode, name, seq1, seq2),
// groups consecutive lines sharing a barcode into one slice, and sends each
// group on batches as soon as it's known to be complete (the next line has
// a different barcode, or the input is exhausted). The caller closes
// batches after loadBatches returns.
func loadBatches(r io.Reader, batches chan<- []rawPair) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	var cur []rawPair
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != 4 {
			return fmt.Errorf("tsv: expected 4 tab-separated fields, got %d", len(fields))
		}
		barcode, name, seq1, seq2 := fields[0], fields[1], fields[2], fields[3]
		p := rawPair{
			a:       cluster.Read{Name: name + "/1", Bases: []byte(seq1), NAmbig: strings.Count(seq1, "N")},
			b:       cluster.Read{Name: name + "/2", Bases: []byte(seq2), NAmbig: strings.Count(seq2, "N")},
			barcode: barcode,
		}
		if len(cur) > 0 && cur[len(cur)-1].barcode != barcode {
			batches <- cur
			cur = nil
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		batches <- cur
	}
	return sc.Err()
}

// chanSupplier implements cluster.PairSupplier over a channel of whole
// barcode batches, so that every pair of one barcode is always consumed by
// the same worker: BatchDriver.ingestBatch only ever sees a barcode change
// at a batch boundary chanSupplier itself respects.
type chanSupplier struct {
	batches <-chan []rawPair
	cur     []rawPair
	idx     int
}

func newChanSupplier(batches <-chan []rawPair) *chanSupplier {
	return &chanSupplier{batches: batches}
}

func (s *chanSupplier) Next() (a, b cluster.Read, barcode string, ok bool, err error) {
	for s.idx >= len(s.cur) {
		next, chanOK := <-s.batches
		if !chanOK {
			return a, b, "", false, nil
		}
		s.cur = next
		s.idx = 0
	}
	p := s.cur[s.idx]
	s.idx++
	return p.a, p.b, p.barcode, true, nil
}

// tsvWriter implements cluster.PairWriter, writing one summary line per
// pair to w. Multiple workers write concurrently, so access is
// mutex-guarded.
type tsvWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newTSVWriter(w io.Writer) *tsvWriter {
	return &tsvWriter{w: bufio.NewWriter(w)}
}

func (t *tsvWriter) WritePairs(ctx context.Context, reads [cluster.NumReadsPerPair]cluster.Read, pairedResults []cluster.PairResult, singleResults []cluster.SingleResult, firstIsPrimary bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var primary cluster.PairResult
	if len(pairedResults) > 0 {
		primary = pairedResults[0]
	} else {
		primary = cluster.PairResult{
			Status:   [cluster.NumReadsPerPair]cluster.AlignmentStatus{cluster.NotFound, cluster.NotFound},
			Location: [cluster.NumReadsPerPair]cluster.GenomeLocation{cluster.InvalidLocation, cluster.InvalidLocation},
		}
	}
	_, err := fmt.Fprintf(t.w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
		reads[0].Name, primary.Status[0], primary.Location[0], primary.Status[1], primary.Location[1],
		len(pairedResults), len(singleResults))
	if err != nil {
		log.Printf("tsv writer: %v", err)
	}
	return err
}

func (t *tsvWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w.Flush()
}
