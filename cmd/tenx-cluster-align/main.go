// tenx-cluster-align drives the per-barcode cluster aligner core over a
// tab-separated demo input (barcode, read name, read-1 bases, read-2 bases)
// and a FASTA reference, using refscan's brute-force seed index and
// bounded edit-distance scorer in place of a production aligner backend.
package main

import (
	"flag"
	"os"
	"runtime"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/tenxaligner/cluster"
	"github.com/grailbio/tenxaligner/cluster/config"
	"github.com/grailbio/tenxaligner/cluster/refscan"
	"github.com/grailbio/tenxaligner/cluster/stats"
)

func main() {
	opts := config.DefaultOptions
	opts.RegisterFlags(flag.CommandLine)

	refPath := flag.String("ref", "", "FASTA reference to align against")
	inPath := flag.String("in", "", "tab-separated input: barcode, name, seq1, seq2")
	outPath := flag.String("out", "", "output path; defaults to stdout")
	numWorkers := flag.Int("workers", runtime.GOMAXPROCS(0), "number of concurrent worker threads")
	maxReadSize := flag.Int("max-read-size", 512, "largest read length to size per-pair arena scratch for")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if *refPath == "" || *inPath == "" {
		log.Fatal("tenx-cluster-align: -ref and -in are required")
	}

	refFile, err := file.Open(ctx, *refPath)
	if err != nil {
		log.Fatalf("open %s: %v", *refPath, err)
	}
	genome, err := refscan.LoadFASTA(refFile.Reader(ctx))
	if err != nil {
		log.Fatalf("load reference %s: %v", *refPath, err)
	}
	if err := refFile.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *refPath, err)
	}
	log.Printf("loaded reference: %d bases", genome.Len())

	index := refscan.Build(genome)
	scorer := refscan.NewScorer(genome)

	inFile, err := file.Open(ctx, *inPath)
	if err != nil {
		log.Fatalf("open %s: %v", *inPath, err)
	}
	batches := make(chan []rawPair, 64)
	go func() {
		if err := loadBatches(inFile.Reader(ctx), batches); err != nil {
			log.Fatalf("read %s: %v", *inPath, err)
		}
		close(batches)
	}()

	outW := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("create %s: %v", *outPath, err)
		}
		outW = f
	}
	writer := newTSVWriter(outW)

	var startupBarrier *cluster.StartupBarrier
	if opts.EnableStartupBarrier {
		startupBarrier = cluster.NewStartupBarrier(*numWorkers)
	}

	total := stats.New()
	var mu sync.Mutex
	var wg sync.WaitGroup
	reserve := cluster.Reserve(*maxReadSize, opts.MaxBarcodeSize)

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			arena := cluster.NewBarcodeArena(reserve)
			aligner := cluster.NewClusterAligner(arena, &opts, index, scorer)
			workerStats := stats.New()
			supplier := newChanSupplier(batches)
			driver := cluster.NewBatchDriver(&opts, supplier, writer, workerStats, arena, aligner, cluster.NoopHibernationHint{}, startupBarrier)
			if err := driver.Run(ctx); err != nil {
				log.Fatalf("worker: %v", err)
			}
			mu.Lock()
			total.Merge(workerStats)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := writer.Flush(); err != nil {
		log.Fatalf("flush output: %v", err)
	}
	if err := inFile.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *inPath, err)
	}
	log.Printf("done: %+v", total)
}
