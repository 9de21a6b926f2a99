package volume

import (
	"testing"

	fserrors "github.com/getuliobr/fat32-shell/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFATManager_AllocateLinksChainInAscendingOrder(t *testing.T) {
	sess := buildSyntheticImage(t, 10).mount(t)

	first, err := sess.FAT.Allocate(3)
	require.NoError(t, err)

	chain, err := sess.FAT.WalkChain(first)
	require.NoError(t, err)
	assert.Len(t, chain, 3)
	for i := 1; i < len(chain); i++ {
		assert.Greater(t, chain[i], chain[i-1], "clusters are linked in ascending discovery order")
	}
}

func TestFATManager_AllocateOutOfSpaceLeavesFATUnchanged(t *testing.T) {
	sess := buildSyntheticImage(t, 2).mount(t)

	snapshot := fat1Snapshot(t, sess)

	_, err := sess.FAT.Allocate(10)
	assert.ErrorIs(t, err, fserrors.ErrOutOfSpace)

	assert.Equal(t, snapshot, fat1Snapshot(t, sess), "a failed allocation must not mutate the FAT")
}

func TestFATManager_FreeMarksEveryClusterInChainFree(t *testing.T) {
	sess := buildSyntheticImage(t, 10).mount(t)

	first, err := sess.FAT.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, sess.FAT.Free(first))

	for cluster := uint32(2); cluster < 12; cluster++ {
		value, err := sess.FAT.ReadEntry(cluster)
		require.NoError(t, err)
		if cluster == 2 {
			// Cluster 2 was pre-marked end-of-chain by the fixture for the
			// root directory and was never part of the allocated chain.
			continue
		}
		assert.Equal(t, uint32(freeCluster), value, "cluster %d should be free again", cluster)
	}
}

func TestFATManager_FAT1MatchesFAT2AfterWrites(t *testing.T) {
	sess := buildSyntheticImage(t, 10).mount(t)

	_, err := sess.FAT.Allocate(5)
	require.NoError(t, err)

	assert.Equal(t, fat1Snapshot(t, sess), fat2Snapshot(t, sess))
}

func fat1Snapshot(t *testing.T, sess *Session) []byte {
	t.Helper()
	buf := make([]byte, int(sess.Boot.Raw.FATSz32)*int(sess.Boot.Raw.BytesPerSector))
	_, err := sess.Image.ReadAt(buf, sess.Boot.FAT1Offset())
	require.NoError(t, err)
	return buf
}

func fat2Snapshot(t *testing.T, sess *Session) []byte {
	t.Helper()
	buf := make([]byte, int(sess.Boot.Raw.FATSz32)*int(sess.Boot.Raw.BytesPerSector))
	_, err := sess.Image.ReadAt(buf, sess.Boot.FAT2Offset())
	require.NoError(t, err)
	return buf
}
