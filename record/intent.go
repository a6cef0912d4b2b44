package record

// FetchIntent asks for specific qualified fields of one record to be refetched.
type FetchIntent struct {
	RecordID string   `json:"record_id"`
	Fields   []string `json:"fields"`
}

// CoalesceIntents merges intents for the same record id, keeping first-seen
// order of ids and sorted field lists.
func CoalesceIntents(intents []FetchIntent) []FetchIntent {
	if len(intents) <= 1 {
		return intents
	}
	var order []string
	fields := map[string]FieldSet{}
	for _, intent := range intents {
		set, ok := fields[intent.RecordID]
		if !ok {
			set = FieldSet{}
			fields[intent.RecordID] = set
			order = append(order, intent.RecordID)
		}
		for _, f := range intent.Fields {
			set[f] = struct{}{}
		}
	}
	out := make([]FetchIntent, 0, len(order))
	for _, id := range order {
		out = append(out, FetchIntent{RecordID: id, Fields: fields[id].Sorted()})
	}
	return out
}

// PendingIntent asks for every top-level Pending field of r, qualified with
// its apiName. ok is false when nothing is pending.
func PendingIntent(r *Record) (intent FetchIntent, ok bool) {
	if r == nil {
		return FetchIntent{}, false
	}
	names := r.PendingFields()
	if len(names) == 0 {
		return FetchIntent{}, false
	}
	set := NewFieldSet()
	for _, name := range names {
		set[r.APIName+"."+name] = struct{}{}
	}
	return FetchIntent{RecordID: r.ID, Fields: set.Sorted()}, true
}
