package record

import (
	"fmt"

	"github.com/c360/recordcache/errors"
)

const checksumAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"

// CanonicalID returns the 18-character form of a 15- or 18-character record id.
func CanonicalID(id string) (string, error) {
	if len(id) != 15 && len(id) != 18 {
		return "", errors.WrapInvalid(errors.ErrInvalidRecordID, "record", "CanonicalID",
			fmt.Sprintf("id %q must be 15 or 18 characters", id))
	}
	for i := 0; i < len(id); i++ {
		if !isAlphanumeric(id[i]) {
			return "", errors.WrapInvalid(errors.ErrInvalidRecordID, "record", "CanonicalID",
				fmt.Sprintf("id %q contains %q", id, id[i]))
		}
	}
	if len(id) == 18 {
		return id, nil
	}

	suffix := make([]byte, 3)
	for chunk := 0; chunk < 3; chunk++ {
		flags := 0
		for bit := 0; bit < 5; bit++ {
			c := id[chunk*5+bit]
			if c >= 'A' && c <= 'Z' {
				flags |= 1 << bit
			}
		}
		suffix[chunk] = checksumAlphabet[flags]
	}
	return id + string(suffix), nil
}

// CanonicalIDOrSelf returns CanonicalID(id), or id unchanged when it is not a record id.
func CanonicalIDOrSelf(id string) string {
	if canonical, err := CanonicalID(id); err == nil {
		return canonical
	}
	return id
}

func isAlphanumeric(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
