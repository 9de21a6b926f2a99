package volume

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFATDateTimeRoundTrip(t *testing.T) {
	moment := time.Date(2022, time.June, 30, 14, 37, 42, 0, time.UTC)

	date := EncodeFATDate(moment)
	day, month, year := DecodeFATDate(date)
	assert.Equal(t, 30, day)
	assert.Equal(t, int(time.June), month)
	assert.Equal(t, 2022, year)

	fatTime := EncodeFATTime(moment)
	hour, minute, second := DecodeFATTime(fatTime)
	assert.Equal(t, 14, hour)
	assert.Equal(t, 37, minute)
	assert.Equal(t, 42, second)
}

func TestEncodeFATTime_ClampsSecondsTo58(t *testing.T) {
	moment := time.Date(2022, time.June, 30, 14, 37, 59, 0, time.UTC)
	fatTime := EncodeFATTime(moment)
	_, _, second := DecodeFATTime(fatTime)
	assert.Equal(t, 58, second)
}

func TestIsDirectory_MutualExclusionWithVolumeID(t *testing.T) {
	dirEntry := RawDirent{Attr: AttrDirectory}
	assert.True(t, dirEntry.IsDirectory())

	volumeLabel := RawDirent{Attr: AttrDirectory | AttrVolumeID}
	assert.False(t, volumeLabel.IsDirectory())
}

func TestIsLongName(t *testing.T) {
	lfn := RawDirent{Attr: AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID}
	assert.True(t, lfn.IsLongName())

	short := RawDirent{Attr: AttrArchive}
	assert.False(t, short.IsLongName())
}

func TestDirentEncodeDecodeRoundTrip(t *testing.T) {
	var e RawDirent
	copy(e.Name[:], "FOO     ")
	copy(e.Extension[:], "TXT")
	e.Attr = AttrArchive
	e.SetFirstCluster(0x00ABCDEF)
	e.FileSize = 1234

	raw := e.Encode()
	decoded := DecodeDirent(raw[:])

	assert.Equal(t, e.Name, decoded.Name)
	assert.Equal(t, e.Extension, decoded.Extension)
	assert.Equal(t, e.Attr, decoded.Attr)
	assert.Equal(t, uint32(0x00ABCDEF), decoded.FirstCluster())
	assert.Equal(t, e.FileSize, decoded.FileSize)
}

func TestStatusByteLifecycle(t *testing.T) {
	terminator := RawDirent{}
	assert.True(t, terminator.IsTerminator())

	var deleted RawDirent
	deleted.Name[0] = StatusDeleted
	assert.True(t, deleted.IsDeleted())
	assert.False(t, deleted.IsTerminator())
}
