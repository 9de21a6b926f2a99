package volume

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// seekerAt adapts an io.ReadWriteSeeker -- what bytesextra hands back --
// to the ReaderAt/WriterAt pair the volume engine needs. Every operation
// under test is single-threaded, but the mutex keeps the shared seek
// position from being raced by test helpers that inspect the buffer
// independently of the session under test.
type seekerAt struct {
	mu sync.Mutex
	rw io.ReadWriteSeeker
}

func newSeekerAt(buf []byte) ReadWriterAt {
	return &seekerAt{rw: bytesextra.NewReadWriteSeeker(buf)}
}

func (s *seekerAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rw.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.rw.Read(p)
}

func (s *seekerAt) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rw.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.rw.Write(p)
}

const (
	fixtureBytesPerSector = 512
	fixtureSectorsPerClus = 1
	fixtureReservedSecCnt = 32
	fixtureNumFATs        = 2
)

// syntheticImage is an in-memory FAT32 image built for tests: the boot
// sector and FSInfo are populated, both FAT copies are zeroed except for
// the two reserved entries (0 and 1) and the root directory's end-of-chain
// marker, and the root directory's
// cluster is zero-filled (an empty directory).
type syntheticImage struct {
	buf           []byte
	totalClusters uint32
	fatSizeSecs   uint32
	dataStartSec  uint32
}

func buildSyntheticImage(t *testing.T, totalClusters uint32) *syntheticImage {
	t.Helper()

	entriesPerFAT := totalClusters + 2
	fatBytes := entriesPerFAT * 4
	fatSizeSecs := (fatBytes + fixtureBytesPerSector - 1) / fixtureBytesPerSector

	dataStartSec := fixtureReservedSecCnt + fixtureNumFATs*fatSizeSecs
	totSec32 := dataStartSec + totalClusters*fixtureSectorsPerClus

	buf := make([]byte, totSec32*fixtureBytesPerSector)

	raw := RawBootSector{
		OEMName:        [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '},
		BytesPerSector: fixtureBytesPerSector,
		SectorsPerClus: fixtureSectorsPerClus,
		ReservedSecCnt: fixtureReservedSecCnt,
		NumFATs:        fixtureNumFATs,
		Media:          0xF8,
		TotSec32:       totSec32,
		FATSz32:        fatSizeSecs,
		RootCluster:    2,
		FSInfoSector:   1,
		VolumeLabel:    [11]byte{'T', 'E', 'S', 'T', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
		FileSystemType: [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '},
		Signature:      0xAA55,
	}

	bootBytes := make([]byte, 512)
	w := bytewriter.New(bootBytes)
	require.NoError(t, binary.Write(w, binary.LittleEndian, &raw))
	copy(buf[0:512], bootBytes)

	fsInfo := RawFSInfo{
		LeadSignature:  fsInfoLeadSignature,
		StrucSignature: fsInfoStrucSignature,
		FreeCount:      totalClusters - 1,
		NextFree:       3,
		TrailSignature: fsInfoTrailSignature,
	}
	fsInfoBytes := make([]byte, 512)
	w = bytewriter.New(fsInfoBytes)
	require.NoError(t, binary.Write(w, binary.LittleEndian, &fsInfo))
	fsInfoOffset := int64(raw.FSInfoSector) * fixtureBytesPerSector
	copy(buf[fsInfoOffset:fsInfoOffset+512], fsInfoBytes)

	img := &syntheticImage{
		buf:           buf,
		totalClusters: totalClusters,
		fatSizeSecs:   fatSizeSecs,
		dataStartSec:  dataStartSec,
	}

	img.writeFATEntry(0, 0x0FFFFFF8)
	img.writeFATEntry(1, 0x0FFFFFFF)
	img.writeFATEntry(2, endOfChain)

	return img
}

func (si *syntheticImage) fat1Offset() int64 {
	return fixtureReservedSecCnt * fixtureBytesPerSector
}

func (si *syntheticImage) fat2Offset() int64 {
	return si.fat1Offset() + int64(si.fatSizeSecs)*fixtureBytesPerSector
}

func (si *syntheticImage) writeFATEntry(cluster uint32, value uint32) {
	var entry [4]byte
	binary.LittleEndian.PutUint32(entry[:], value&fatEntryMask)
	off1 := si.fat1Offset() + int64(cluster)*4
	off2 := si.fat2Offset() + int64(cluster)*4
	copy(si.buf[off1:off1+4], entry[:])
	copy(si.buf[off2:off2+4], entry[:])
}

func (si *syntheticImage) clusterOffset(cluster uint32) int64 {
	sector := int64(cluster-2)*fixtureSectorsPerClus + int64(si.dataStartSec)
	return sector * fixtureBytesPerSector
}

// mount builds a Session directly over the synthetic buffer.
func (si *syntheticImage) mount(t *testing.T) *Session {
	t.Helper()
	img := NewImageFromReadWriterAt(newSeekerAt(si.buf))
	sess, err := MountImage(img)
	require.NoError(t, err)
	return sess
}
