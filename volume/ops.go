package volume

import (
	"fmt"
	"strings"
	"time"

	fserrors "github.com/getuliobr/fat32-shell/errors"
)

// shortNameOf reassembles the raw 11-byte short name of an entry into the
// EncodedName form the name codec already knows how to decode and compare.
func shortNameOf(e RawDirent) EncodedName {
	var n EncodedName
	copy(n[0:8], e.Name[:])
	copy(n[8:11], e.Extension[:])
	return n
}

// Info reports the BPB fields and the addresses derived from them. It
// performs no mutation.
func (sess *Session) Info() string {
	raw := &sess.Boot.Raw
	var b strings.Builder

	fmt.Fprintf(&b, "FAT Filesystem information\n\n")
	fmt.Fprintf(&b, "OEM name: %s\n", strings.TrimRight(string(raw.OEMName[:]), " "))
	fmt.Fprintf(&b, "Total sectors: %d\n", raw.TotSec32)
	fmt.Fprintf(&b, "Jump: 0x%02X%02X%02X\n", raw.JmpBoot[0], raw.JmpBoot[1], raw.JmpBoot[2])
	fmt.Fprintf(&b, "Sector size: %d\n", raw.BytesPerSector)
	fmt.Fprintf(&b, "Sectors per cluster: %d\n", raw.SectorsPerClus)
	fmt.Fprintf(&b, "Reserved sectors: %d\n", raw.ReservedSecCnt)
	fmt.Fprintf(&b, "Number of fats: %d\n", raw.NumFATs)
	fmt.Fprintf(&b, "Root dir entries: %d\n", raw.RootEntCnt)
	fmt.Fprintf(&b, "Media: 0x%02X (%s)\n", raw.Media, sess.MediaDescription())
	fmt.Fprintf(&b, "Sectors by FAT: %d\n", raw.FATSz32)
	fmt.Fprintf(&b, "Sectors per track: %d\n", raw.SecPerTrk)
	fmt.Fprintf(&b, "Number of heads: %d\n", raw.NumHeads)
	fmt.Fprintf(&b, "Hidden sectors: %d\n", raw.HiddSec)
	fmt.Fprintf(&b, "Drive number: 0x%02X\n", raw.DriveNumber)
	fmt.Fprintf(&b, "Boot signature: 0x%02X\n", raw.BootSignature)
	fmt.Fprintf(&b, "Volume ID: 0x%08X\n", raw.VolumeID)
	fmt.Fprintf(&b, "Volume label: %s\n", string(raw.VolumeLabel[:]))
	fmt.Fprintf(&b, "Filesystem type: %s\n", string(raw.FileSystemType[:]))
	fmt.Fprintf(&b, "BS Signature: 0x%04X\n", raw.Signature)

	fmt.Fprintf(&b, "FAT1 start address: 0x%016X\n", sess.Boot.FAT1Offset())
	fmt.Fprintf(&b, "FAT2 start address: 0x%016X\n", sess.Boot.FAT2Offset())
	fmt.Fprintf(&b, "Data start address: 0x%016X\n", int64(sess.Boot.DataRegionStartSector)*int64(raw.BytesPerSector))

	return b.String()
}

// Ls lists the current directory's cached entries, one per line, skipping
// deleted and long-name slots and stopping at the first terminator.
func (sess *Session) Ls() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATEDATE CRT_TIME UPDATEDATE UPD_TIME LSTACCDATE SIZE\t\tNAME\n")

	for _, e := range sess.CurrentDirectory().Entries {
		if e.IsTerminator() {
			break
		}
		if e.IsDeleted() || e.IsLongName() {
			continue
		}

		cDay, cMonth, cYear := DecodeFATDate(e.CreateDate)
		cHour, cMin, cSec := DecodeFATTime(e.CreateTime)
		wDay, wMonth, wYear := DecodeFATDate(e.WriteDate)
		wHour, wMin, wSec := DecodeFATTime(e.WriteTime)
		aDay, aMonth, aYear := DecodeFATDate(e.LastAccessDate)

		kind := "- "
		if e.IsDirectory() {
			kind = "d "
		}

		fmt.Fprintf(&b, "%02d/%02d/%d %02d:%02d:%02d %02d/%02d/%d %02d:%02d:%02d %02d/%02d/%d %d\t\t%s%s\n",
			cDay, cMonth, cYear, cHour, cMin, cSec,
			wDay, wMonth, wYear, wHour, wMin, wSec,
			aDay, aMonth, aYear,
			e.FileSize, kind, shortNameOf(e).String())
	}

	return b.String()
}

// unprintableSubstitutes is the set of control bytes cluster dump renders
// as a space instead of their control-character glyph.
var unprintableSubstitutes = map[byte]bool{
	'\b': true, '\t': true, '\n': true, '\v': true, '\f': true, '\r': true,
}

// Cluster returns a hex+ASCII dump of cluster number n's raw bytes, 16
// bytes per row.
func (sess *Session) Cluster(n uint32) (string, error) {
	size := sess.Boot.BytesPerCluster
	buf := make([]byte, size)
	if _, err := sess.Image.ReadAt(buf, sess.Boot.ClusterByteOffset(n)); err != nil {
		return "", err
	}

	const columns = 16
	var b strings.Builder
	for row := 0; row < int(size)/columns; row++ {
		for col := 0; col < columns; col++ {
			fmt.Fprintf(&b, "%02X ", buf[row*columns+col])
		}
		b.WriteString("   ")
		for col := 0; col < columns; col++ {
			c := buf[row*columns+col]
			switch {
			case c == 0x00:
				b.WriteByte('.')
			case unprintableSubstitutes[c]:
				b.WriteByte(' ')
			default:
				b.WriteByte(c)
			}
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Pwd renders the path from root to the current directory.
func (sess *Session) Pwd() string {
	return sess.Stack.Path()
}

// Cd changes the current directory. "." is a no-op; ".." pops to the
// parent (a no-op at the root); anything else must name a live
// subdirectory of the current directory.
func (sess *Session) Cd(name string) error {
	if name == "." {
		return nil
	}
	if name == ".." {
		sess.Stack.Pop()
		return nil
	}

	encoded, ok := EncodeName(name)
	if !ok {
		return fserrors.ErrInvalidName
	}

	dir := sess.CurrentDirectory()
	idx, found := dir.findLive(encoded)
	if !found || !dir.Entries[idx].IsDirectory() {
		return fserrors.ErrNotFound
	}

	entry := dir.Entries[idx]
	loaded, err := sess.LoadDirectory(entry.FirstCluster())
	if err != nil {
		return err
	}

	sess.Stack.Push(entry.FirstCluster(), shortNameOf(entry).String())
	sess.Stack.Current().Dir = loaded
	return nil
}

// Attr reports every field of the named entry, including each attribute
// bit individually.
func (sess *Session) Attr(name string) (string, error) {
	encoded, ok := EncodeName(name)
	if !ok {
		return "", fserrors.ErrInvalidName
	}

	dir := sess.CurrentDirectory()
	idx, found := dir.findLive(encoded)
	if !found {
		return "", fserrors.ErrNotFound
	}
	e := dir.Entries[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "Name = %s\n", string(e.Name[:]))
	fmt.Fprintf(&b, "Extension = %s\n", string(e.Extension[:]))
	fmt.Fprintf(&b, "ATTR_READ_ONLY = %d\n", boolToInt(e.Attr&AttrReadOnly != 0))
	fmt.Fprintf(&b, "ATTR_HIDDEN = %d\n", boolToInt(e.Attr&AttrHidden != 0))
	fmt.Fprintf(&b, "ATTR_SYSTEM = %d\n", boolToInt(e.Attr&AttrSystem != 0))
	fmt.Fprintf(&b, "ATTR_VOLUME_ID = %d\n", boolToInt(e.Attr&AttrVolumeID != 0))
	fmt.Fprintf(&b, "ATTR_DIRECTORY = %d\n", boolToInt(e.Attr&AttrDirectory != 0))
	fmt.Fprintf(&b, "ATTR_ARCHIVE = %d\n", boolToInt(e.Attr&AttrArchive != 0))
	fmt.Fprintf(&b, "NTRes = %d\n", e.NTReserved)
	fmt.Fprintf(&b, "Crt Time Tenth = %d\n", e.CreateTimeTenths)

	cHour, cMin, cSec := DecodeFATTime(e.CreateTime)
	fmt.Fprintf(&b, "Crt Time = %02d:%02d:%02d\n", cHour, cMin, cSec)
	cDay, cMonth, cYear := DecodeFATDate(e.CreateDate)
	fmt.Fprintf(&b, "Crt Date = %02d/%02d/%d\n", cDay, cMonth, cYear)
	aDay, aMonth, aYear := DecodeFATDate(e.LastAccessDate)
	fmt.Fprintf(&b, "Lst Acc Date = %02d/%02d/%d\n", aDay, aMonth, aYear)
	fmt.Fprintf(&b, "Fst Clus HI = %d\n", e.FirstClusterHigh)
	wHour, wMin, wSec := DecodeFATTime(e.WriteTime)
	fmt.Fprintf(&b, "Wrt Time = %02d:%02d:%02d\n", wHour, wMin, wSec)
	wDay, wMonth, wYear := DecodeFATDate(e.WriteDate)
	fmt.Fprintf(&b, "Wrt Date = %02d/%02d/%d\n", wDay, wMonth, wYear)
	fmt.Fprintf(&b, "Fst Clus LO = %d\n", e.FirstClusterLow)
	fmt.Fprintf(&b, "File Size = %d bytes\n", e.FileSize)

	return b.String(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Rename encodes both names, errors if OLD is missing or NEW already
// exists, and otherwise overwrites the name field and refreshes the write
// timestamp. A no-op (not even a disk write) when OLD and NEW encode
// identically.
func (sess *Session) Rename(oldName, newName string) error {
	encodedOld, ok := EncodeName(oldName)
	if !ok {
		return fserrors.ErrInvalidName
	}
	encodedNew, ok := EncodeName(newName)
	if !ok {
		return fserrors.ErrInvalidName
	}
	if encodedOld == encodedNew {
		return nil
	}

	dir := sess.CurrentDirectory()
	idx, found := dir.findLive(encodedOld)
	if !found {
		return fserrors.ErrNotFound
	}
	if _, exists := dir.findLive(encodedNew); exists {
		return fserrors.ErrAlreadyExists
	}

	entry := dir.Entries[idx]
	copy(entry.Name[:], encodedNew[0:8])
	copy(entry.Extension[:], encodedNew[8:11])

	now := time.Now()
	entry.WriteDate = EncodeFATDate(now)
	entry.WriteTime = EncodeFATTime(now)

	dir.Entries[idx] = entry
	return sess.FlushEntry(dir, idx)
}

// createEntry implements touch and mkdir's shared logic: validate the
// name, allocate one data cluster, find or make room for a new directory
// slot, and flush a freshly initialized entry. If growing the directory or
// flushing the entry fails, the allocated cluster is freed before
// returning. If writing a new directory's `.`/`..` cluster fails, the entry
// is already on disk and the cluster stays allocated to it.
func (sess *Session) createEntry(name string, attr uint8) error {
	encoded, ok := EncodeName(name)
	if !ok {
		return fserrors.ErrInvalidName
	}

	dir := sess.CurrentDirectory()
	if _, exists := dir.findLive(encoded); exists {
		return fserrors.ErrAlreadyExists
	}

	dataCluster, err := sess.FAT.Allocate(1)
	if err != nil {
		return err
	}

	idx, ok := dir.findSlot()
	if !ok {
		idx, err = sess.Grow(dir)
		if err != nil {
			_ = sess.FAT.Free(dataCluster)
			return err
		}
	}

	now := time.Now()
	date := EncodeFATDate(now)
	tm := EncodeFATTime(now)

	var entry RawDirent
	copy(entry.Name[:], encoded[0:8])
	copy(entry.Extension[:], encoded[8:11])
	entry.Attr = attr
	entry.SetFirstCluster(dataCluster)
	entry.CreateDate = date
	entry.CreateTime = tm
	entry.WriteDate = date
	entry.WriteTime = tm
	entry.LastAccessDate = date

	dir.Entries[idx] = entry
	if err := sess.FlushEntry(dir, idx); err != nil {
		_ = sess.FAT.Free(dataCluster)
		return err
	}

	if attr == AttrDirectory {
		parentCluster := dir.StartCluster
		if sess.Stack.Current().IsRoot() {
			// Open-question resolution (DESIGN.md): store 0, per the
			// Microsoft specification, rather than the BPB root cluster.
			parentCluster = 0
		}
		dot := buildDotEntry(dataCluster, date, tm)
		dotdot := buildDotDotEntry(parentCluster, date, tm)
		if err := sess.initDirCluster(dataCluster, []RawDirent{dot, dotdot}); err != nil {
			return err
		}
	}

	return nil
}

func buildDotEntry(selfCluster uint32, date, tm uint16) RawDirent {
	var e RawDirent
	e.Name = [8]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	e.Extension = [3]byte{' ', ' ', ' '}
	e.Attr = AttrDirectory
	e.SetFirstCluster(selfCluster)
	e.CreateDate, e.CreateTime = date, tm
	e.WriteDate, e.WriteTime = date, tm
	e.LastAccessDate = date
	return e
}

func buildDotDotEntry(parentCluster uint32, date, tm uint16) RawDirent {
	var e RawDirent
	e.Name = [8]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' '}
	e.Extension = [3]byte{' ', ' ', ' '}
	e.Attr = AttrDirectory
	e.SetFirstCluster(parentCluster)
	e.CreateDate, e.CreateTime = date, tm
	e.WriteDate, e.WriteTime = date, tm
	e.LastAccessDate = date
	return e
}

// initDirCluster writes entries at the start of a freshly allocated,
// zero-filled cluster buffer -- upholding invariant 4 without relying on
// whatever bytes the cluster previously held.
func (sess *Session) initDirCluster(cluster uint32, entries []RawDirent) error {
	buf := make([]byte, sess.Boot.BytesPerCluster)
	for i, e := range entries {
		raw := e.Encode()
		copy(buf[i*DirentSize:], raw[:])
	}
	_, err := sess.Image.WriteAt(buf, sess.Boot.ClusterByteOffset(cluster))
	return err
}

// Touch creates a new regular-file entry with an empty, one-cluster data
// chain.
func (sess *Session) Touch(name string) error {
	return sess.createEntry(name, AttrArchive)
}

// Mkdir creates a new subdirectory, seeding its sole data cluster with
// `.` and `..` entries.
func (sess *Session) Mkdir(name string) error {
	return sess.createEntry(name, AttrDirectory)
}

// removeEntry marks the named live entry deleted and frees its cluster
// chain, erroring if its kind doesn't match expectDir.
func (sess *Session) removeEntry(name EncodedName, expectDir bool) error {
	dir := sess.CurrentDirectory()
	idx, found := dir.findLive(name)
	if !found {
		return fserrors.ErrNotFound
	}

	entry := dir.Entries[idx]
	if entry.IsDirectory() != expectDir {
		return fserrors.ErrWrongKind
	}

	entry.Name[0] = StatusDeleted
	dir.Entries[idx] = entry
	if err := sess.FlushEntry(dir, idx); err != nil {
		return err
	}
	return sess.FAT.Free(entry.FirstCluster())
}

// Rm removes a file entry. It errors if the target is a directory.
func (sess *Session) Rm(name string) error {
	encoded, ok := EncodeName(name)
	if !ok {
		return fserrors.ErrInvalidName
	}
	return sess.removeEntry(encoded, false)
}

// Rmdir removes an empty subdirectory. It errors if the target is a file
// or holds any live entry beyond `.` and `..`.
func (sess *Session) Rmdir(name string) error {
	encoded, ok := EncodeName(name)
	if !ok {
		return fserrors.ErrInvalidName
	}

	dir := sess.CurrentDirectory()
	idx, found := dir.findLive(encoded)
	if !found {
		return fserrors.ErrNotFound
	}
	if !dir.Entries[idx].IsDirectory() {
		return fserrors.ErrWrongKind
	}

	if err := sess.Cd(name); err != nil {
		return err
	}
	liveCount := sess.CurrentDirectory().liveCount()
	_ = sess.Cd("..")

	if liveCount > 2 {
		return fserrors.ErrDirectoryNotEmpty
	}

	return sess.removeEntry(encoded, true)
}
