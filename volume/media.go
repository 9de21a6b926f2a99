package volume

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// MediaByte is a BPB media descriptor value, parsed from the catalog CSV
// as a hex literal (e.g. "0xF8").
type MediaByte uint8

// UnmarshalCSV implements gocsv's TypeUnmarshaller so the catalog's hex
// literals decode directly into a byte value.
func (m *MediaByte) UnmarshalCSV(value string) error {
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 8)
	if err != nil {
		return fmt.Errorf("invalid media descriptor byte %q: %w", value, err)
	}
	*m = MediaByte(parsed)
	return nil
}

// MediaDescriptor is one row of the media-descriptor catalog (component
// J): the conventional meaning of a BPB media byte.
type MediaDescriptor struct {
	Byte        MediaByte `csv:"byte"`
	Name        string    `csv:"name"`
	Description string    `csv:"description"`
}

//go:embed media_descriptors.csv
var mediaDescriptorsCSV string

var mediaDescriptors map[uint8]MediaDescriptor

func init() {
	mediaDescriptors = make(map[uint8]MediaDescriptor)
	err := gocsv.UnmarshalToCallback(
		strings.NewReader(mediaDescriptorsCSV),
		func(row MediaDescriptor) error {
			mediaDescriptors[uint8(row.Byte)] = row
			return nil
		},
	)
	if err != nil {
		panic(fmt.Errorf("parsing embedded media descriptor catalog: %w", err))
	}
}

// DescribeMedia looks up the conventional meaning of a BPB media
// descriptor byte. ok is false for a byte outside the known catalog.
func DescribeMedia(b uint8) (desc MediaDescriptor, ok bool) {
	desc, ok = mediaDescriptors[b]
	return desc, ok
}

// MediaDescription returns a human-readable summary of the session's
// media descriptor byte, falling back to a generic label for values
// outside the known catalog.
func (sess *Session) MediaDescription() string {
	desc, ok := DescribeMedia(sess.Boot.Raw.Media)
	if !ok {
		return fmt.Sprintf("unknown media descriptor 0x%02X", sess.Boot.Raw.Media)
	}
	return fmt.Sprintf("%s (%s)", desc.Name, desc.Description)
}
