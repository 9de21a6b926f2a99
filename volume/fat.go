package volume

import (
	"encoding/binary"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	fserrors "github.com/getuliobr/fat32-shell/errors"
)

// ReadWriterAt is the random-access byte interface the FAT manager and
// directory cache need from the backing image (component A: Image I/O).
// *os.File satisfies it directly.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// FATManager owns both FAT copies: reading and writing mirrored 32-bit
// entries, walking chains, and allocating/freeing clusters (component C).
//
// It keeps an in-memory bitmap of free clusters, rebuilt once at mount,
// so that Allocate doesn't need to re-scan every FAT cell from disk on
// every call; the bitmap is kept in lockstep with every write.
type FATManager struct {
	bs   *BootSector
	img  ReadWriterAt
	free bitmap.Bitmap

	// totalClusters is the number of addressable data clusters, clusters
	// numbered starting at 2.
	totalClusters uint32
	fsinfo        *RawFSInfo
}

// NewFATManager reads both FAT copies' worth of cluster state (by way of
// scanning FAT1 once) and builds the free-cluster bitmap.
func NewFATManager(bs *BootSector, img ReadWriterAt, fsinfo *RawFSInfo, totalClusters uint32) (*FATManager, error) {
	mgr := &FATManager{
		bs:            bs,
		img:           img,
		totalClusters: totalClusters,
		fsinfo:        fsinfo,
		free:          bitmap.New(int(totalClusters)),
	}

	for cluster := uint32(2); cluster < totalClusters+2; cluster++ {
		value, err := mgr.readRaw(cluster)
		if err != nil {
			return nil, err
		}
		mgr.free.Set(int(cluster-2), value == freeCluster)
	}

	return mgr, nil
}

func (m *FATManager) readRaw(cluster uint32) (uint32, error) {
	var buf [4]byte
	if _, err := m.img.ReadAt(buf[:], m.bs.FATEntryOffset(cluster)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]) & fatEntryMask, nil
}

// ReadEntry returns the clamped value of a cluster's FAT entry: any value
// >= 0x0FFFFFF8 is normalized to the single end-of-chain sentinel.
func (m *FATManager) ReadEntry(cluster uint32) (uint32, error) {
	value, err := m.readRaw(cluster)
	if err != nil {
		return 0, err
	}
	if value >= endOfChain {
		return endOfChain, nil
	}
	return value, nil
}

// IsEndOfChain reports whether a FAT value is the end-of-chain sentinel.
func IsEndOfChain(value uint32) bool {
	return value >= endOfChain
}

// WriteEntry writes value to both FAT copies' mirrored offsets for
// cluster, and updates the free-cluster bitmap to match.
func (m *FATManager) WriteEntry(cluster uint32, value uint32) error {
	var buf [4]byte
	w := bytewriter.New(buf[:])
	if err := binary.Write(w, binary.LittleEndian, value&fatEntryMask); err != nil {
		return err
	}

	if _, err := m.img.WriteAt(buf[:], m.bs.FATEntryOffset(cluster)); err != nil {
		return err
	}
	if _, err := m.img.WriteAt(buf[:], m.bs.FAT2EntryOffset(cluster)); err != nil {
		return err
	}

	if cluster >= 2 && cluster < m.totalClusters+2 {
		m.free.Set(int(cluster-2), value == freeCluster)
	}
	return nil
}

// WalkChain returns every cluster in the chain starting at start, in
// order, including start itself (unless start is already end-of-chain).
func (m *FATManager) WalkChain(start uint32) ([]uint32, error) {
	var chain []uint32
	cluster := start
	for !IsEndOfChain(cluster) {
		chain = append(chain, cluster)
		next, err := m.ReadEntry(cluster)
		if err != nil {
			return nil, err
		}
		cluster = next
	}
	return chain, nil
}

// LastClusterInChain returns the final, non-sentinel cluster of the chain
// starting at start.
func (m *FATManager) LastClusterInChain(start uint32) (uint32, error) {
	current := start
	for {
		next, err := m.ReadEntry(current)
		if err != nil {
			return 0, err
		}
		if IsEndOfChain(next) {
			return current, nil
		}
		current = next
	}
}

// Allocate finds n free clusters by a linear scan of the free bitmap
// starting from cluster 2, links them into a chain in ascending discovery
// order, terminates the chain with the end-of-chain marker, and returns
// the first cluster. If fewer than n clusters are free, it returns
// ErrOutOfSpace and leaves the FAT unmodified.
func (m *FATManager) Allocate(n int) (uint32, error) {
	if n <= 0 {
		return 0, nil
	}

	found := make([]uint32, 0, n)
	for i := 0; i < int(m.totalClusters) && len(found) < n; i++ {
		if m.free.Get(i) {
			found = append(found, uint32(i)+2)
		}
	}
	if len(found) < n {
		return 0, fserrors.ErrOutOfSpace
	}

	for i, cluster := range found {
		next := endOfChain
		if i+1 < len(found) {
			next = found[i+1]
		}
		if err := m.WriteEntry(cluster, next); err != nil {
			return 0, err
		}
	}

	m.adjustFreeCount(-int64(n))
	if len(found) > 0 {
		m.fsinfo.NextFree = found[len(found)-1] + 1
	}

	return found[0], nil
}

// Free walks the chain starting at start and marks every cluster in it
// free. Cluster data bytes are not zeroed.
func (m *FATManager) Free(start uint32) error {
	chain, err := m.WalkChain(start)
	if err != nil {
		return err
	}
	for _, cluster := range chain {
		if err := m.WriteEntry(cluster, freeCluster); err != nil {
			return err
		}
	}
	m.adjustFreeCount(int64(len(chain)))
	return nil
}

func (m *FATManager) adjustFreeCount(delta int64) {
	if m.fsinfo == nil {
		return
	}
	current := int64(m.fsinfo.FreeCount)
	if current < 0 {
		current = 0
	}
	current += delta
	if current < 0 {
		current = 0
	}
	m.fsinfo.FreeCount = uint32(current)
}
