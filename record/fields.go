package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360/recordcache/errors"
)

// DefaultTrackedFieldDepth bounds how many spanning hops contribute tracked fields.
const DefaultTrackedFieldDepth = 5

// LinkResolver returns the record stored under a cache key.
type LinkResolver func(key string) (*Record, bool)

// FieldSet is a set of qualified field names such as "Opportunity.Account.Name".
type FieldSet map[string]struct{}

// NewFieldSet builds a set from names.
func NewFieldSet(names ...string) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Superset reports whether s contains every name in other.
func (s FieldSet) Superset(other FieldSet) bool {
	for name := range other {
		if _, ok := s[name]; !ok {
			return false
		}
	}
	return true
}

// Minus returns the sorted names in s that are not in other.
func (s FieldSet) Minus(other FieldSet) []string {
	var out []string
	for name := range s {
		if _, ok := other[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Sorted returns the names in lexical order.
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TrackedFields returns every qualified field name known for r, following
// spanning fields through nested records or resolve for up to maxDepth hops.
func TrackedFields(r *Record, resolve LinkResolver, maxDepth int) FieldSet {
	out := FieldSet{}
	if r == nil {
		return out
	}
	collectTracked(r, r.APIName, 0, resolve, maxDepth, out)
	return out
}

func collectTracked(r *Record, prefix string, depth int, resolve LinkResolver, maxDepth int, out FieldSet) {
	for name, fv := range r.Fields {
		qualified := prefix + "." + name
		out[qualified] = struct{}{}
		if depth >= maxDepth {
			continue
		}
		if nested := follow(fv, resolve); nested != nil {
			collectTracked(nested, qualified, depth+1, resolve, maxDepth, out)
		}
	}
}

func follow(fv FieldValue, resolve LinkResolver) *Record {
	if fv.Record != nil {
		return fv.Record
	}
	if fv.Link != "" && resolve != nil {
		if nested, ok := resolve(fv.Link); ok {
			return nested
		}
	}
	return nil
}

// SplitQualified splits "Account.Owner.Name" into the apiName "Account" and the
// path ["Owner", "Name"].
func SplitQualified(qualified string) (apiName string, path []string, err error) {
	parts := strings.Split(qualified, ".")
	if len(parts) < 2 {
		return "", nil, errors.WrapInvalid(errors.ErrInvalidFieldName, "record", "SplitQualified",
			fmt.Sprintf("field %q is not qualified with an apiName", qualified))
	}
	for _, p := range parts {
		if !isIdentifier(p) {
			return "", nil, errors.WrapInvalid(errors.ErrInvalidFieldName, "record", "SplitQualified",
				fmt.Sprintf("field %q has an invalid segment %q", qualified, p))
		}
	}
	return parts[0], parts[1:], nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && !isAlphanumeric(c) {
			return false
		}
	}
	return true
}
