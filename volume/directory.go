package volume

// Directory is the materialized, resizable cache of a single directory's
// raw entries (component D). The cached count always spans an integer
// number of clusters (invariant 3).
type Directory struct {
	StartCluster uint32
	Entries      []RawDirent
}

// LoadDirectory walks the cluster chain starting at startCluster and reads
// every entry in it into a fresh Directory cache.
func (sess *Session) LoadDirectory(startCluster uint32) (*Directory, error) {
	chain, err := sess.FAT.WalkChain(startCluster)
	if err != nil {
		return nil, err
	}

	clusterSize := int(sess.Boot.BytesPerCluster)
	dirents := sess.Boot.DirentsPerCluster

	dir := &Directory{
		StartCluster: startCluster,
		Entries:      make([]RawDirent, 0, len(chain)*dirents),
	}

	buf := make([]byte, clusterSize)
	for _, cluster := range chain {
		if _, err := sess.Image.ReadAt(buf, sess.Boot.ClusterByteOffset(cluster)); err != nil {
			return nil, err
		}
		for i := 0; i < dirents; i++ {
			offset := i * DirentSize
			dir.Entries = append(dir.Entries, DecodeDirent(buf[offset:offset+DirentSize]))
		}
	}

	return dir, nil
}

// clusterAndOffsetForIndex returns the on-disk cluster and in-cluster byte
// offset of cached entry index i.
func (sess *Session) clusterAndOffsetForIndex(dir *Directory, i int) (cluster uint32, inClusterOffset int, err error) {
	clusterSize := int(sess.Boot.BytesPerCluster)
	hops := uint((i * DirentSize) / clusterSize)
	inClusterOffset = (i * DirentSize) % clusterSize

	cluster = dir.StartCluster
	for h := uint(0); h < hops; h++ {
		cluster, err = sess.FAT.ReadEntry(cluster)
		if err != nil {
			return 0, 0, err
		}
	}
	return cluster, inClusterOffset, nil
}

// EntryOffset computes the absolute on-disk byte offset of cached entry i.
func (sess *Session) EntryOffset(dir *Directory, i int) (int64, error) {
	cluster, inClusterOffset, err := sess.clusterAndOffsetForIndex(dir, i)
	if err != nil {
		return 0, err
	}
	return sess.Boot.ClusterByteOffset(cluster) + int64(inClusterOffset), nil
}

// FlushEntry writes cached entry i back to its on-disk position.
func (sess *Session) FlushEntry(dir *Directory, i int) error {
	offset, err := sess.EntryOffset(dir, i)
	if err != nil {
		return err
	}
	raw := dir.Entries[i].Encode()
	_, err = sess.Image.WriteAt(raw[:], offset)
	return err
}

// Grow allocates one additional cluster for the directory, zeroes it (to
// uphold invariant 4 without relying on residue, per the open-question
// resolution in DESIGN.md), links it from the directory's current last
// cluster, and reloads the cache. It returns the new entries' starting
// index in the reloaded cache.
func (sess *Session) Grow(dir *Directory) (newEntriesStart int, err error) {
	lastCluster, err := sess.FAT.LastClusterInChain(dir.StartCluster)
	if err != nil {
		return 0, err
	}

	newCluster, err := sess.FAT.Allocate(1)
	if err != nil {
		return 0, err
	}

	zeroed := make([]byte, sess.Boot.BytesPerCluster)
	if _, err := sess.Image.WriteAt(zeroed, sess.Boot.ClusterByteOffset(newCluster)); err != nil {
		_ = sess.FAT.Free(newCluster)
		return 0, err
	}

	if err := sess.FAT.WriteEntry(lastCluster, newCluster); err != nil {
		_ = sess.FAT.Free(newCluster)
		return 0, err
	}

	newEntriesStart = len(dir.Entries)
	reloaded, err := sess.LoadDirectory(dir.StartCluster)
	if err != nil {
		return 0, err
	}
	*dir = *reloaded
	return newEntriesStart, nil
}

// findSlot returns the index of the first available slot for a new entry:
// the first deleted (0xE5) slot if one exists, otherwise the terminator
// slot. ok is false if the directory needs to grow before a slot is
// available.
func (dir *Directory) findSlot() (index int, ok bool) {
	terminatorIndex := -1
	for i, e := range dir.Entries {
		if e.IsTerminator() {
			terminatorIndex = i
			break
		}
		if e.IsDeleted() {
			return i, true
		}
	}
	if terminatorIndex >= 0 {
		return terminatorIndex, true
	}
	return 0, false
}

// findLive returns the index of the live, non-long-name entry whose name
// matches name, stopping at the first terminator.
func (dir *Directory) findLive(name EncodedName) (index int, ok bool) {
	for i, e := range dir.Entries {
		if e.IsTerminator() {
			break
		}
		if e.IsDeleted() || e.IsLongName() {
			continue
		}
		if e.Name == [8]byte(name[0:8]) && e.Extension == [3]byte(name[8:11]) {
			return i, true
		}
	}
	return 0, false
}

// liveCount counts live, non-long-name entries up to the first terminator.
func (dir *Directory) liveCount() int {
	count := 0
	for _, e := range dir.Entries {
		if e.IsTerminator() {
			break
		}
		if e.IsDeleted() || e.IsLongName() {
			continue
		}
		count++
	}
	return count
}
