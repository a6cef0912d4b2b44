package record

import "fmt"

// Kind partitions records that share a wire shape but live in different key namespaces.
type Kind int

const (
	// KindRecord is an ordinary record addressed by id.
	KindRecord Kind = iota
	// KindViewEntity is the "Name" view of a record.
	KindViewEntity
)

// ViewEntityAPIName is the apiName that marks a view entity payload.
const ViewEntityAPIName = "Name"

// Cache key namespaces.
const (
	RecordKeyPrefix     = "UiApi::RecordRepresentation:"
	ViewEntityKeyPrefix = "UiApi::RecordViewEntityRepresentation:Name:"
)

// KindOf classifies an apiName.
func KindOf(apiName string) Kind {
	if apiName == ViewEntityAPIName {
		return KindViewEntity
	}
	return KindRecord
}

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindViewEntity:
		return "view_entity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KeyFor builds the cache key for id in the namespace of kind. The id is
// canonicalized to 18 characters when it is a valid 15-character id.
func KeyFor(kind Kind, id string) string {
	id = CanonicalIDOrSelf(id)
	switch kind {
	case KindViewEntity:
		return ViewEntityKeyPrefix + id
	case KindRecord:
		return RecordKeyPrefix + id
	default:
		panic(fmt.Sprintf("record: unhandled kind %d", int(kind)))
	}
}

// KeyOf returns the canonical cache key of r.
func KeyOf(r *Record) string {
	return KeyFor(KindOf(r.APIName), r.ID)
}
