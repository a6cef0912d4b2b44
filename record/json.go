package record

import (
	"bytes"
	"encoding/json"

	"github.com/c360/recordcache/errors"
)

// wireRecord is the UI API record representation. Nullable strings are pointers
// so absent metadata round-trips as null.
type wireRecord struct {
	APIName          string                `json:"apiName"`
	ID               string                `json:"id"`
	ETag             *string               `json:"eTag,omitempty"`
	WeakEtag         int64                 `json:"weakEtag"`
	LastModifiedByID *string               `json:"lastModifiedById"`
	LastModifiedDate *string               `json:"lastModifiedDate"`
	SystemModstamp   *string               `json:"systemModstamp"`
	RecordTypeID     *string               `json:"recordTypeId"`
	Fields           map[string]FieldValue `json:"fields"`
}

// wireField carries the value plus the store-only link and state markers.
type wireField struct {
	DisplayValue *string         `json:"displayValue"`
	Value        json.RawMessage `json:"value"`
	Ref          string          `json:"__ref,omitempty"`
	State        string          `json:"__state,omitempty"`
}

// MarshalJSON encodes the record in wire format with Unknown as weakEtag 0.
func (r *Record) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = map[string]FieldValue{}
	}
	return json.Marshal(wireRecord{
		APIName:          r.APIName,
		ID:               r.ID,
		ETag:             nullable(r.ETag),
		WeakEtag:         r.Version.Wire(),
		LastModifiedByID: nullable(r.LastModifiedByID),
		LastModifiedDate: nullable(r.LastModifiedDate),
		SystemModstamp:   nullable(r.SystemModstamp),
		RecordTypeID:     nullable(r.RecordTypeID),
		Fields:           fields,
	})
}

// UnmarshalJSON decodes a wire record. A weakEtag of 0 becomes Unknown.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.WrapInvalid(err, "record", "UnmarshalJSON", "decode record")
	}
	*r = Record{
		APIName:          w.APIName,
		ID:               w.ID,
		Version:          VersionFromWire(w.WeakEtag),
		ETag:             deref(w.ETag),
		LastModifiedByID: deref(w.LastModifiedByID),
		LastModifiedDate: deref(w.LastModifiedDate),
		SystemModstamp:   deref(w.SystemModstamp),
		RecordTypeID:     deref(w.RecordTypeID),
		Fields:           w.Fields,
	}
	if r.Fields == nil {
		r.Fields = map[string]FieldValue{}
	}
	return nil
}

// MarshalJSON encodes a field. Nested records are inlined as the value.
func (f FieldValue) MarshalJSON() ([]byte, error) {
	w := wireField{DisplayValue: f.DisplayValue, Ref: f.Link}
	if f.State != Fulfilled {
		w.State = f.State.String()
	}

	var err error
	switch {
	case f.Record != nil:
		w.Value, err = json.Marshal(f.Record)
	default:
		w.Value, err = json.Marshal(f.Value)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a field. An object value is decoded as a nested record.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*f = FieldValue{DisplayValue: w.DisplayValue, Link: w.Ref}
	switch w.State {
	case "", "fulfilled":
		f.State = Fulfilled
	case "pending":
		f.State = Pending
	case "missing":
		f.State = Missing
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "record", "UnmarshalJSON",
			"unknown field state "+w.State)
	}

	value := bytes.TrimSpace(w.Value)
	if len(value) > 0 && value[0] == '{' {
		nested := &Record{}
		if err := json.Unmarshal(value, nested); err != nil {
			return err
		}
		f.Record = nested
		return nil
	}
	if len(value) == 0 {
		return nil
	}
	return json.Unmarshal(value, &f.Value)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
