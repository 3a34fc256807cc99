// Package cluster implements the per-barcode cluster aligner: the part of a
// linked-read (10x Genomics) paired-end aligner that batches all read pairs
// sharing a molecular barcode into one cooperative work unit, drives them
// through a three-stage alignment pipeline, and exploits the linked-read
// prior that reads sharing a barcode originate from a small number of long
// source molecules.
//
// The package does not decode reads, build a seed index, compute edit
// distance, or serialize results. Those are supplied by the caller through
// the SeedIndex, EditDistanceScorer, PairSupplier and PairWriter
// interfaces; counters go into a *stats.Stats. This package owns only the
// orchestration: arena
// memory management, the per-pair state machine, secondary-buffer growth,
// and cluster inference.
//
// The four pieces, leaves-first:
//
//	PairAligner     aligns one read pair; a resumable three-phase state machine.
//	BarcodeArena     canary-guarded bump allocator, one per worker.
//	ClusterAligner   drives N PairAligners through the three stages for a barcode.
//	BatchDriver      per-worker-thread loop: ingest, align, emit, repeat.
//
// Each worker thread owns exactly one of each; there is no shared mutable
// state between workers.
package cluster
