package record

import (
	"github.com/c360/recordcache/store"
)

// Outcome names the merge branch taken.
type Outcome string

// Merge outcomes.
const (
	OutcomeInserted    Outcome = "inserted"
	OutcomeUnion       Outcome = "union"
	OutcomeSuperset    Outcome = "superset"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomePending     Outcome = "pending"
)

// MergeResult is the record to store plus the refetches needed to resolve its
// pending fields.
type MergeResult struct {
	Record  *Record
	Refetch []FetchIntent
	Outcome Outcome
}

// Merger reconciles an incoming record with the slot stored at its key.
type Merger struct {
	supported SupportedEntities
	resolve   LinkResolver
	maxDepth  int
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithSupportedEntities replaces the default supported entity set.
func WithSupportedEntities(s SupportedEntities) MergerOption {
	return func(m *Merger) { m.supported = s }
}

// WithLinkResolver lets tracked-field collection follow normalized links.
func WithLinkResolver(resolve LinkResolver) MergerOption {
	return func(m *Merger) { m.resolve = resolve }
}

// WithTrackedFieldDepth bounds the spanning depth of tracked fields.
func WithTrackedFieldDepth(depth int) MergerOption {
	return func(m *Merger) {
		if depth >= 0 {
			m.maxDepth = depth
		}
	}
}

// NewMerger creates a Merger.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{
		supported: NewSupportedEntities(DefaultSupportedEntities...),
		maxDepth:  DefaultTrackedFieldDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge computes the record to store at incoming's key. existing is nil when
// the key is empty. Merge does not modify its arguments.
func (m *Merger) Merge(existing *store.Slot[*Record], incoming *Record) MergeResult {
	if existing == nil || existing.IsError() || existing.Value == nil {
		return MergeResult{Record: incoming, Outcome: OutcomeInserted}
	}
	current := existing.Value

	cmp, comparable := incoming.Version.Compare(current.Version)
	if !comparable || cmp == 0 {
		return MergeResult{Record: unionMerge(current, incoming, true), Outcome: OutcomeUnion}
	}

	higher, lower := incoming, current
	if cmp < 0 {
		higher, lower = current, incoming
	}

	higherFields := TrackedFields(higher, m.resolve, m.maxDepth)
	lowerFields := TrackedFields(lower, m.resolve, m.maxDepth)
	if higherFields.Superset(lowerFields) {
		return MergeResult{Record: higher, Outcome: OutcomeSuperset}
	}

	if !m.supported.Supports(incoming.APIName) {
		return MergeResult{Record: unionMerge(lower, higher, false), Outcome: OutcomeUnsupported}
	}

	merged := higher.Clone()
	for name := range lower.Fields {
		if _, ok := merged.Fields[name]; ok {
			continue
		}
		// A pending field holds no value, not even the stale one.
		merged.Fields[name] = FieldValue{State: Pending}
	}

	return MergeResult{
		Record:  merged,
		Refetch: []FetchIntent{{RecordID: higher.ID, Fields: lowerFields.Minus(higherFields)}},
		Outcome: OutcomePending,
	}
}

// unionMerge overlays over's fields onto under's. Metadata comes from the first
// side that has it, over first. With keepFulfilled set, a pending or missing
// field in over does not replace a fulfilled field in under.
func unionMerge(under, over *Record, keepFulfilled bool) *Record {
	out := over.withoutFields()
	out.LastModifiedByID = firstNonEmpty(over.LastModifiedByID, under.LastModifiedByID)
	out.LastModifiedDate = firstNonEmpty(over.LastModifiedDate, under.LastModifiedDate)
	out.SystemModstamp = firstNonEmpty(over.SystemModstamp, under.SystemModstamp)
	out.ETag = firstNonEmpty(over.ETag, under.ETag)
	out.RecordTypeID = firstNonEmpty(over.RecordTypeID, under.RecordTypeID)
	if !over.Version.IsKnown() {
		out.Version = under.Version
	}

	out.Fields = make(map[string]FieldValue, len(under.Fields)+len(over.Fields))
	for name, fv := range under.Fields {
		out.Fields[name] = fv
	}
	for name, fv := range over.Fields {
		if prev, ok := out.Fields[name]; ok && keepFulfilled &&
			fv.State != Fulfilled && prev.State == Fulfilled {
			continue
		}
		out.Fields[name] = fv
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
