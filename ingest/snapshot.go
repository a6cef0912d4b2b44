package ingest

import (
	"github.com/c360/recordcache/record"
	"github.com/c360/recordcache/store"
)

// State classifies a read.
type State int

const (
	// StateFulfilled means every requested field has an authoritative value.
	StateFulfilled State = iota
	// StateUnfulfilled means at least one requested field is not in the store.
	StateUnfulfilled
	// StatePending means every field is present but some await a refetch.
	StatePending
	// StateError means the slot holds a recorded error.
	StateError
	// StateMissing means nothing is stored at the key.
	StateMissing
)

func (s State) String() string {
	switch s {
	case StateFulfilled:
		return "fulfilled"
	case StateUnfulfilled:
		return "unfulfilled"
	case StatePending:
		return "pending"
	case StateError:
		return "error"
	case StateMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Snapshot is a denormalized view of one stored record.
type Snapshot struct {
	Key   string
	State State
	// Data holds the requested fields with links replaced by nested records.
	// Pending fields are omitted.
	Data          *record.Record
	Error         *store.ErrorEntry
	AbsentFields  []string
	PendingFields []string
}

// Read builds a snapshot of key restricted to fields and optionalFields. With
// no fields requested the whole record is returned, following links up to the
// default tracked depth.
func (i *Ingestor) Read(key string, fields, optionalFields []string) Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	snap := Snapshot{Key: key}
	slot, ok := i.records.Get(key)
	switch {
	case !ok:
		snap.State = StateMissing
		return snap
	case slot.IsError():
		snap.State = StateError
		snap.Error = slot.Error
		return snap
	case slot.Value == nil:
		snap.State = StateMissing
		return snap
	}

	root := slot.Value
	if len(fields) == 0 && len(optionalFields) == 0 {
		snap.Data = i.denormalize(root, 0)
		snap.PendingFields = root.PendingFields()
		snap.State = StateFulfilled
		if len(snap.PendingFields) > 0 {
			snap.State = StatePending
		}
		return snap
	}

	snap.Data = shell(root)
	for _, f := range fields {
		i.selectField(root, snap.Data, f, false, &snap)
	}
	for _, f := range optionalFields {
		i.selectField(root, snap.Data, f, true, &snap)
	}

	switch {
	case len(snap.AbsentFields) > 0:
		snap.State = StateUnfulfilled
	case len(snap.PendingFields) > 0:
		snap.State = StatePending
	default:
		snap.State = StateFulfilled
	}
	return snap
}

// selectField copies one qualified field from the stored tree into out.
func (i *Ingestor) selectField(root, out *record.Record, qualified string, optional bool, snap *Snapshot) {
	apiName, path, err := record.SplitQualified(qualified)
	if err != nil || apiName != root.APIName {
		snap.AbsentFields = append(snap.AbsentFields, qualified)
		return
	}

	cur, dst := root, out
	for idx, name := range path {
		fv, ok := cur.Fields[name]
		if !ok {
			snap.AbsentFields = append(snap.AbsentFields, qualified)
			return
		}
		switch fv.State {
		case record.Pending:
			snap.PendingFields = append(snap.PendingFields, qualified)
			return
		case record.Missing:
			if !optional {
				snap.AbsentFields = append(snap.AbsentFields, qualified)
			}
			return
		}

		nested := i.follow(fv)
		last := idx == len(path)-1
		if last || nested == nil {
			if _, done := dst.Fields[name]; !done {
				fv.Link = ""
				fv.Record = nil
				if nested != nil {
					fv.Record = shell(nested)
				}
				dst.Fields[name] = fv
			}
			return
		}

		existing, ok := dst.Fields[name]
		if !ok || existing.Record == nil {
			existing = fv
			existing.Link = ""
			existing.Record = shell(nested)
			dst.Fields[name] = existing
		}
		cur, dst = nested, existing.Record
	}
}

func (i *Ingestor) follow(fv record.FieldValue) *record.Record {
	if fv.Record != nil {
		return fv.Record
	}
	if fv.Link == "" {
		return nil
	}
	nested, _ := i.lookup(fv.Link)
	return nested
}

func (i *Ingestor) denormalize(r *record.Record, depth int) *record.Record {
	out := shell(r)
	for name, fv := range r.Fields {
		if fv.State == record.Pending {
			continue
		}
		if nested := i.follow(fv); nested != nil {
			fv.Link = ""
			if depth < record.DefaultTrackedFieldDepth {
				fv.Record = i.denormalize(nested, depth+1)
			} else {
				fv.Record = shell(nested)
			}
		}
		out.Fields[name] = fv
	}
	return out
}

// shell copies r's metadata with an empty field map.
func shell(r *record.Record) *record.Record {
	out := *r
	out.Fields = map[string]record.FieldValue{}
	return &out
}
