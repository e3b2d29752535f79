package serder

import (
	"errors"
	"fmt"
	"strconv"
)

// VersionSpanChars is the fixed width of the `v` field: 4 protocol chars +
// 2 version-hex chars + 4 kind chars + 6 size-hex chars + 1 terminator.
const VersionSpanChars = 17

const versionSizeHexDigits = 6

var (
	ErrBadVersionString = errors.New("serder: malformed version string")
	ErrSizeMismatch     = errors.New("serder: version string size does not match serialized length")
)

// Version is the protocol-version pair carried in VV.
type Version struct {
	Major int
	Minor int
}

// VersionString renders the 17-character `v` field value.
func VersionString(protocol string, ver Version, kind Kind, size int) (string, error) {
	if len(protocol) != 4 {
		return "", ErrBadVersionString
	}
	if ver.Major < 0 || ver.Major > 15 || ver.Minor < 0 || ver.Minor > 15 {
		return "", ErrBadVersionString
	}
	if size < 0 || size >= 1<<(4*versionSizeHexDigits) {
		return "", ErrBadVersionString
	}
	return fmt.Sprintf("%s%x%x%s%0*x_", protocol, ver.Major, ver.Minor, kind.String(), versionSizeHexDigits, size), nil
}

// PlaceholderVersionString renders a version string with the size field
// filled with '#' placeholders of the correct width -- step 2 of the SAID
// algorithm in spec.md §4.2.
func PlaceholderVersionString(protocol string, ver Version, kind Kind) (string, error) {
	if len(protocol) != 4 {
		return "", ErrBadVersionString
	}
	placeholder := ""
	for i := 0; i < versionSizeHexDigits; i++ {
		placeholder += "#"
	}
	return fmt.Sprintf("%s%x%x%s%s_", protocol, ver.Major, ver.Minor, kind.String(), placeholder), nil
}

// ParseVersionString parses the `v` field, returning protocol, version,
// kind and the declared message size.
func ParseVersionString(v string) (protocol string, ver Version, kind Kind, size int, err error) {
	if len(v) != VersionSpanChars {
		return "", Version{}, 0, 0, ErrBadVersionString
	}
	if v[len(v)-1] != '_' {
		return "", Version{}, 0, 0, ErrBadVersionString
	}
	protocol = v[0:4]
	major, err1 := strconv.ParseInt(v[4:5], 16, 8)
	minor, err2 := strconv.ParseInt(v[5:6], 16, 8)
	if err1 != nil || err2 != nil {
		return "", Version{}, 0, 0, ErrBadVersionString
	}
	kind, err = ParseKind(v[6:10])
	if err != nil {
		return "", Version{}, 0, 0, err
	}
	sz, err3 := strconv.ParseInt(v[10:16], 16, 64)
	if err3 != nil {
		return "", Version{}, 0, 0, ErrBadVersionString
	}
	return protocol, Version{Major: int(major), Minor: int(minor)}, kind, int(sz), nil
}

// CheckSize verifies P3 (version-size consistency): the size hex inside v
// must equal the byte length of the whole serialized message.
func CheckSize(v string, actualLen int) error {
	_, _, _, declared, err := ParseVersionString(v)
	if err != nil {
		return err
	}
	if declared != actualLen {
		return ErrSizeMismatch
	}
	return nil
}
