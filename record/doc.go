// Package record defines the normalized record model and the merge rules that
// reconcile two representations of the same record.
//
// A Record is stored under exactly one cache key, chosen by its Kind:
//
//	UiApi::RecordRepresentation:<id18>
//	UiApi::RecordViewEntityRepresentation:Name:<id18>
//
// Versions are explicit: Known(n) compares numerically, Unknown always merges.
// On the wire a weakEtag of 0 means Unknown.
//
// Merger.Merge never performs I/O. When the newer version lacks fields the
// older version knew about, the result carries those fields marked Pending and
// returns a FetchIntent naming them; dispatching the intent is up to the caller.
package record
