package volume

import (
	"strings"
)

// prohibitedChars are the bytes create_formated_name from the original tool
// replaces with an underscore in the base portion of a short name; the
// encoder here applies the same substitution to the extension too (see
// DESIGN.md's open-question resolution).
const prohibitedChars = "+,;=[]. "

// EncodedName is the 11-byte 8.3 short-name encoding of a user-supplied
// name: 8 bytes of base, space-padded, followed by 3 bytes of extension,
// space-padded.
type EncodedName [11]byte

// String decodes the name back into its display form: the base with
// trailing spaces trimmed, then, if the extension isn't all spaces, a dot
// followed by the extension with trailing spaces trimmed.
func (n EncodedName) String() string {
	base := strings.TrimRight(string(n[0:8]), " ")
	ext := strings.TrimRight(string(n[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// EncodeName validates and encodes a user-supplied name into its 11-byte
// short-name form. ok is false if the name fails validation; in that case
// the returned EncodedName is the zero value and must not be used.
//
// Validation rejects: more than one dot, a leading dot, a base longer than
// 8 characters, an extension longer than 3 characters, input longer than
// 13 characters, or input of exactly 13 characters with no dot.
func EncodeName(input string) (name EncodedName, ok bool) {
	if len(input) > 13 {
		return name, false
	}

	dotPos := -1
	for i, c := range input {
		if c == '.' {
			if dotPos != -1 {
				return name, false
			}
			dotPos = i
		}
	}

	if dotPos == 0 {
		return name, false
	}
	if len(input) == 13 && dotPos == -1 {
		return name, false
	}

	var base, ext string
	if dotPos == -1 {
		base = input
	} else {
		base = input[:dotPos]
		ext = input[dotPos+1:]
	}

	if len(base) > 8 || len(ext) > 3 {
		return name, false
	}

	for i := 0; i < 8; i++ {
		name[i] = ' '
	}
	for i := 8; i < 11; i++ {
		name[i] = ' '
	}

	for i := 0; i < len(base); i++ {
		name[i] = upperAndSubstitute(base[i])
	}
	for i := 0; i < len(ext); i++ {
		name[8+i] = upperAndSubstitute(ext[i])
	}

	return name, true
}

// upperAndSubstitute uppercases a byte and replaces it with an underscore
// if it's in the prohibited set.
func upperAndSubstitute(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if strings.IndexByte(prohibitedChars, c) >= 0 {
		return '_'
	}
	return c
}
