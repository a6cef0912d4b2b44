package record

import "strconv"

// Version is an optimistic-concurrency token. The zero value is Unknown.
type Version struct {
	n     int64
	known bool
}

// Known returns a version with value n.
func Known(n int64) Version {
	return Version{n: n, known: true}
}

// Unknown returns the version that merges with anything.
func Unknown() Version {
	return Version{}
}

// VersionFromWire decodes a weakEtag. 0 is the wire encoding of Unknown.
func VersionFromWire(weakEtag int64) Version {
	if weakEtag == 0 {
		return Unknown()
	}
	return Known(weakEtag)
}

// Wire encodes the version as a weakEtag.
func (v Version) Wire() int64 {
	if !v.known {
		return 0
	}
	return v.n
}

// IsKnown reports whether the version carries a value.
func (v Version) IsKnown() bool {
	return v.known
}

// Value returns the version number and whether it is known.
func (v Version) Value() (int64, bool) {
	return v.n, v.known
}

// Compare returns -1, 0 or 1. ok is false when either side is Unknown.
func (v Version) Compare(other Version) (cmp int, ok bool) {
	if !v.known || !other.known {
		return 0, false
	}
	switch {
	case v.n < other.n:
		return -1, true
	case v.n > other.n:
		return 1, true
	default:
		return 0, true
	}
}

func (v Version) String() string {
	if !v.known {
		return "unknown"
	}
	return strconv.FormatInt(v.n, 10)
}
