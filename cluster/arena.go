package cluster

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
	"v.io/x/lib/vlog"
)

const (
	hugePageSize  = 2 << 20 // Linux transparent hugetlb size.
	canaryWords   = 2       // one canary word before the scratch region, one after.
	canarySize    = 8 * canaryWords
	arenaAlignTo  = 8 // every alloc() is rounded up to this boundary.
)

// BarcodeArena is a single bump-allocated memory region sized to back one
// ClusterAligner plus MaxBarcodeSize PairAligners' scratch state. It is not
// thread-safe; exactly one BatchDriver worker owns it for its entire
// lifetime. The arena is sized once, at worker start, from configuration,
// and never grows; only per-pair secondary-result buffers (ordinary Go
// slices, not arena memory) grow, and only on overflow.
//
// Unlike a Go []byte backed by the runtime allocator, the scratch region is
// an anonymous mmap with MADV_HUGEPAGE, matching the huge-page-backed scratch
// tables used elsewhere in this codebase for large, long-lived, pointer-free
// regions.
type BarcodeArena struct {
	buf []byte // the full mmap'd region, including the two canary words.
	n   int    // bump pointer: bytes allocated so far, from buf[canarySize/2:].

	salt        uint64 // per-arena fingerprint input, set once in NewBarcodeArena.
	frontCanary uint64
	backCanary  uint64

	closed bool
}

// ArenaReservation describes the byte size a BarcodeArena must mmap to back
// a ClusterAligner of the given shape. It mirrors TenXAligner's
// reserve(index, maxReadSize, ..., maxBarcodeSize) contract: the caller
// computes the size up front, then allocates exactly that much.
type ArenaReservation struct {
	ScratchBytes int
}

// Reserve computes the arena size required for a ClusterAligner backing up
// to maxBarcodeSize pairs, each needing up to maxReadSize bytes of per-pair
// seed/candidate scratch.
func Reserve(maxReadSize, maxBarcodeSize int) ArenaReservation {
	const perPairScratch = 256 // fixed scratch per PairAligner: seed/dedup bookkeeping.
	scratch := maxBarcodeSize * (perPairScratch + 2*maxReadSize)
	// Round up to a whole number of huge pages so the madvise hint is
	// meaningful; matches the kmer index table's rounding.
	pages := (scratch+canarySize)/hugePageSize + 1
	return ArenaReservation{ScratchBytes: pages * hugePageSize}
}

// NewBarcodeArena mmaps a region sized by res and installs canaries at its
// two boundaries. The returned arena must be released with Close once its
// owning worker is done with it.
func NewBarcodeArena(res ArenaReservation) *BarcodeArena {
	size := res.ScratchBytes + canarySize
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Madvise(buf, unix.MADV_HUGEPAGE); err != nil {
		// Non-fatal: the region still works without the hugepage hint, just
		// with worse TLB behavior.
		log.Debug.Printf("madvise(MADV_HUGEPAGE) failed, continuing without it: %v", err)
	}
	a := &BarcodeArena{buf: buf}
	a.salt = randomSalt()
	a.frontCanary = a.canaryValue(0)
	a.backCanary = a.canaryValue(1)
	binary.LittleEndian.PutUint64(a.buf[0:8], a.frontCanary)
	binary.LittleEndian.PutUint64(a.buf[len(a.buf)-8:], a.backCanary)
	a.n = 8
	return a
}

func randomSalt() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		log.Panic(err)
	}
	return binary.LittleEndian.Uint64(b[:])
}

// canaryValue fingerprints the arena's salt and boundary index so that a
// stray write from a neighboring allocation is overwhelmingly unlikely to
// reproduce it by accident.
func (a *BarcodeArena) canaryValue(boundary uint64) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], a.salt)
	binary.LittleEndian.PutUint64(b[8:16], boundary)
	return seahash.Sum64(b[:])
}

// align rounds a.n up to an 8-byte boundary, as unsafeArena.align does.
func (a *BarcodeArena) align() {
	a.n = ((a.n-1)/arenaAlignTo + 1) * arenaAlignTo
}

// Alloc returns a zeroed, size-byte slice backed by the arena. It never
// allocates from the Go heap. Requires the arena to have at least size
// bytes of free space between the two canaries.
func (a *BarcodeArena) Alloc(size int) []byte {
	a.align()
	limit := len(a.buf) - 8
	if a.n+size > limit {
		vlog.Fatalf("cluster: arena overflow, n=%d, size=%d, limit=%d", a.n, size, limit)
	}
	s := a.buf[a.n : a.n+size]
	for i := range s {
		s[i] = 0 // bytes may be left over from before the last Reset.
	}
	a.n += size
	return s
}

// Reset rewinds the bump pointer without unmapping, so the arena can be
// reused for the next barcode's aligners. Canaries are checked first.
func (a *BarcodeArena) Reset() {
	a.CheckCanaries()
	a.n = 8
}

// CheckCanaries verifies both boundary words are intact. A mismatch means
// some allocation wrote past its bounds; this is always fatal, mirroring
// the canary-violation-is-fatal contract for in-place arena allocators.
func (a *BarcodeArena) CheckCanaries() {
	front := binary.LittleEndian.Uint64(a.buf[0:8])
	back := binary.LittleEndian.Uint64(a.buf[len(a.buf)-8:])
	if front != a.frontCanary || back != a.backCanary {
		vlog.Fatalf("cluster: arena canary corrupted (front ok=%v, back ok=%v); memory corruption in per-barcode aligner state",
			front == a.frontCanary, back == a.backCanary)
	}
}

// Close verifies canaries one last time and unmaps the region. After Close,
// the arena must not be used again; any PairAligner or ClusterAligner built
// on it must already have had its in-place destructor run.
func (a *BarcodeArena) Close() error {
	if a.closed {
		return nil
	}
	a.CheckCanaries()
	a.closed = true
	if err := unix.Munmap(a.buf); err != nil {
		return fmt.Errorf("cluster: munmap arena: %w", err)
	}
	return nil
}
