// Package volume implements the FAT32 volume engine: the boot sector and
// FSInfo interpreter, the mirrored FAT manager, the directory entry cache
// and cluster allocator, and the short-name directory mutation logic that
// together make up the core of the FAT32 shell.
package volume

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// RawBootSector is the on-disk, byte-exact layout of the first sector of a
// FAT32 image, per the Microsoft FAT specification.
type RawBootSector struct {
	JmpBoot        [3]byte
	OEMName        [8]byte
	BytesPerSector uint16
	SectorsPerClus uint8
	ReservedSecCnt uint16
	NumFATs        uint8
	RootEntCnt     uint16
	TotSec16       uint16
	Media          uint8
	FATSz16        uint16
	SecPerTrk      uint16
	NumHeads       uint16
	HiddSec        uint32
	TotSec32       uint32

	// FAT32-specific fields.
	FATSz32        uint32
	ExtFlags       uint16
	FSVer          uint16
	RootCluster    uint32
	FSInfoSector   uint16
	BkBootSec      uint16
	BPBReserved    [12]byte
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
	BootCode       [420]byte
	Signature      uint16
}

// RawFSInfo is the on-disk layout of the FSInfo sector.
type RawFSInfo struct {
	LeadSignature  uint32
	Reserved1      [480]byte
	StrucSignature uint32
	FreeCount      uint32
	NextFree       uint32
	Reserved2      [12]byte
	TrailSignature uint32
}

const (
	fsInfoLeadSignature  = 0x41615252
	fsInfoStrucSignature = 0x61417272
	fsInfoTrailSignature = 0xAA550000

	// endOfChain is the sentinel value the FAT manager normalizes any
	// reserved/bad-cluster marker (anything >= 0x0FFFFFF8) into.
	endOfChain uint32 = 0x0FFFFFF8
	freeCluster uint32 = 0x00000000

	fatEntryMask uint32 = 0x0FFFFFFF
)

// BootSector bundles the raw BPB fields with the geometry derived from
// them (component B: Geometry). It is immutable for the session once
// loaded, per the spec's lifecycle rules.
type BootSector struct {
	Raw RawBootSector

	// DataRegionStartSector is the first sector of the cluster-addressed
	// data region: reserved sectors + (num FATs * sectors per FAT).
	DataRegionStartSector uint32
	BytesPerCluster       uint32
	DirentsPerCluster     int
}

// ReadBootSector reads and validates the 512-byte boot sector from the
// start of the image.
func ReadBootSector(r io.Reader) (*BootSector, error) {
	var raw RawBootSector
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("reading boot sector: %w", err)
	}

	if err := validateRawBootSector(&raw); err != nil {
		return nil, err
	}

	bs := &BootSector{
		Raw:                   raw,
		DataRegionStartSector: uint32(raw.ReservedSecCnt) + uint32(raw.NumFATs)*raw.FATSz32,
		BytesPerCluster:       uint32(raw.BytesPerSector) * uint32(raw.SectorsPerClus),
	}
	bs.DirentsPerCluster = int(bs.BytesPerCluster) / DirentSize
	return bs, nil
}

// validateRawBootSector aggregates every sanity check the engine can
// perform on the BPB into a single reported diagnostic, instead of
// bailing out on the first failure.
func validateRawBootSector(raw *RawBootSector) error {
	var result *multierror.Error

	switch raw.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		result = multierror.Append(result, fmt.Errorf(
			"bytes per sector must be 512, 1024, 2048, or 4096, got %d", raw.BytesPerSector))
	}

	switch raw.SectorsPerClus {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		result = multierror.Append(result, fmt.Errorf(
			"sectors per cluster must be a power of 2 in [1, 128], got %d", raw.SectorsPerClus))
	}

	if raw.NumFATs < 1 {
		result = multierror.Append(result, fmt.Errorf(
			"number of FATs must be at least 1, got %d", raw.NumFATs))
	}

	if raw.FATSz32 == 0 {
		result = multierror.Append(result, fmt.Errorf("FAT32 size in sectors is zero"))
	}

	if raw.RootCluster < 2 {
		result = multierror.Append(result, fmt.Errorf(
			"root cluster must be >= 2, got %d", raw.RootCluster))
	}

	if raw.RootEntCnt != 0 {
		result = multierror.Append(result, fmt.Errorf(
			"FAT32 volumes must have a zero root entry count, got %d", raw.RootEntCnt))
	}

	if result != nil {
		result.ErrorFormat = func(errs []error) string {
			msg := "invalid boot sector:"
			for _, e := range errs {
				msg += "\n  - " + e.Error()
			}
			return msg
		}
		return result
	}
	return nil
}

// ReadFSInfo reads the FSInfo sector. Its free-count/next-free hints are
// taken as the session's starting values; the FAT manager adjusts them on
// every allocate and free, and the session writes them back when it is
// closed.
func ReadFSInfo(r io.Reader) (*RawFSInfo, error) {
	var fsi RawFSInfo
	if err := binary.Read(r, binary.LittleEndian, &fsi); err != nil {
		return nil, fmt.Errorf("reading FSInfo: %w", err)
	}
	return &fsi, nil
}

// FAT1Offset returns the byte offset of the start of the first FAT copy.
func (bs *BootSector) FAT1Offset() int64 {
	return int64(bs.Raw.ReservedSecCnt) * int64(bs.Raw.BytesPerSector)
}

// FAT2Offset returns the byte offset of the start of the second FAT copy.
func (bs *BootSector) FAT2Offset() int64 {
	return bs.FAT1Offset() + int64(bs.Raw.FATSz32)*int64(bs.Raw.BytesPerSector)
}

// FATEntryOffset returns the byte offset of a cluster's 32-bit entry within
// the first FAT copy.
func (bs *BootSector) FATEntryOffset(cluster uint32) int64 {
	return int64(bs.Raw.ReservedSecCnt)*int64(bs.Raw.BytesPerSector) + int64(cluster)*4
}

// FAT2EntryOffset returns the byte offset of a cluster's 32-bit entry
// within the second (mirrored) FAT copy.
func (bs *BootSector) FAT2EntryOffset(cluster uint32) int64 {
	return bs.FATEntryOffset(cluster) + int64(bs.Raw.FATSz32)*int64(bs.Raw.BytesPerSector)
}

// ClusterByteOffset returns the absolute byte offset of cluster N's first
// byte in the data region.
func (bs *BootSector) ClusterByteOffset(cluster uint32) int64 {
	sector := (int64(cluster)-2)*int64(bs.Raw.SectorsPerClus) + int64(bs.DataRegionStartSector)
	return sector * int64(bs.Raw.BytesPerSector)
}

// FSInfoOffset returns the absolute byte offset of the FSInfo sector.
func (bs *BootSector) FSInfoOffset() int64 {
	return int64(bs.Raw.FSInfoSector) * int64(bs.Raw.BytesPerSector)
}
