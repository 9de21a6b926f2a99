package volume

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// Session bundles everything that was process-global state in the
// original tool -- the disk handle, the BPB, and the directory stack --
// into a single value threaded through every operation (component H, per
// the design note in spec.md §9: testability improves markedly when the
// engine is a value, not globals).
type Session struct {
	Image  *Image
	Boot   *BootSector
	FSInfo *RawFSInfo
	FAT    *FATManager
	Stack  *Stack
}

// Mount opens the image at path, reads its boot sector and FSInfo, builds
// the FAT manager and free-cluster bitmap, and loads the root directory.
func Mount(path string) (*Session, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	return mountImage(img)
}

// MountImage runs the same mount sequence as Mount against an
// already-open Image, for callers -- chiefly tests -- that back the
// session with something other than a real file.
func MountImage(img *Image) (*Session, error) {
	return mountImage(img)
}

func mountImage(img *Image) (*Session, error) {
	bootBuf := make([]byte, 512)
	if _, err := img.ReadAt(bootBuf, 0); err != nil {
		img.Close()
		return nil, err
	}
	boot, err := ReadBootSector(bytes.NewReader(bootBuf))
	if err != nil {
		img.Close()
		return nil, err
	}

	fsInfoBuf := make([]byte, 512)
	if _, err := img.ReadAt(fsInfoBuf, boot.FSInfoOffset()); err != nil {
		img.Close()
		return nil, err
	}
	fsInfo, err := ReadFSInfo(bytes.NewReader(fsInfoBuf))
	if err != nil {
		img.Close()
		return nil, err
	}

	totalClusters := (boot.Raw.TotSec32 - boot.DataRegionStartSector) / uint32(boot.Raw.SectorsPerClus)

	fat, err := NewFATManager(boot, img, fsInfo, totalClusters)
	if err != nil {
		img.Close()
		return nil, err
	}

	sess := &Session{
		Image:  img,
		Boot:   boot,
		FSInfo: fsInfo,
		FAT:    fat,
		Stack:  NewStack(boot.Raw.RootCluster),
	}

	rootDir, err := sess.LoadDirectory(boot.Raw.RootCluster)
	if err != nil {
		img.Close()
		return nil, err
	}
	sess.Stack.Current().Dir = rootDir

	return sess, nil
}

// Close flushes the FSInfo hints and releases the image handle.
func (sess *Session) Close() error {
	if err := sess.flushFSInfo(); err != nil {
		sess.Image.Close()
		return err
	}
	return sess.Image.Close()
}

// CurrentDirectory returns the current frame's directory cache.
func (sess *Session) CurrentDirectory() *Directory {
	return sess.Stack.Current().Dir
}

// flushFSInfo writes the session's free-count/next-free hints back to the
// FSInfo sector, per the open-question resolution that those hints are
// maintained rather than left stale (DESIGN.md).
func (sess *Session) flushFSInfo() error {
	buf := make([]byte, 512)
	w := bytewriter.New(buf)
	if err := binary.Write(w, binary.LittleEndian, sess.FSInfo); err != nil {
		return err
	}
	_, err := sess.Image.WriteAt(buf, sess.Boot.FSInfoOffset())
	return err
}
