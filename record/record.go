package record

// FieldState describes how much is known about a field value.
type FieldState int

const (
	// Fulfilled fields carry an authoritative value.
	Fulfilled FieldState = iota
	// Pending fields are known to exist but their value is stale until a refetch lands.
	Pending
	// Missing fields were requested as optional and the server did not return them.
	Missing
)

func (s FieldState) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case Pending:
		return "pending"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// FieldValue is one field of a record. A spanning field carries a nested
// Record in payloads; after ingestion the nested record is stored under its own
// key and Link names that key.
type FieldValue struct {
	Value        any
	DisplayValue *string
	Record       *Record
	Link         string
	State        FieldState
}

// IsSpanning reports whether the field references another record.
func (f FieldValue) IsSpanning() bool {
	return f.Record != nil || f.Link != ""
}

// Record is a normalized entity representation.
type Record struct {
	APIName          string
	ID               string
	Version          Version
	ETag             string
	LastModifiedByID string
	LastModifiedDate string
	SystemModstamp   string
	RecordTypeID     string
	Fields           map[string]FieldValue
}

// Kind returns the record's key partition.
func (r *Record) Kind() Kind {
	return KindOf(r.APIName)
}

// Key returns the canonical cache key.
func (r *Record) Key() string {
	return KeyOf(r)
}

// Clone returns a copy whose field map and nested records can be modified
// without affecting r. Scalar values are shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := r.withoutFields()
	out.Fields = make(map[string]FieldValue, len(r.Fields))
	for name, fv := range r.Fields {
		if fv.Record != nil {
			fv.Record = fv.Record.Clone()
		}
		out.Fields[name] = fv
	}
	return out
}

func (r *Record) withoutFields() *Record {
	out := *r
	out.Fields = nil
	return &out
}

// Field returns the named top-level field.
func (r *Record) Field(name string) (FieldValue, bool) {
	fv, ok := r.Fields[name]
	return fv, ok
}

// PendingFields returns the names of top-level fields marked Pending.
func (r *Record) PendingFields() []string {
	var names []string
	for name, fv := range r.Fields {
		if fv.State == Pending {
			names = append(names, name)
		}
	}
	return names
}
