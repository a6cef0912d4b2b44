package record

import "strings"

// Suffixes of entity apiNames that always accept extra-field requests:
// custom objects, knowledge article versions and external objects.
var supportedSuffixes = []string{"__c", "__kav", "__x"}

// DefaultSupportedEntities lists the standard objects whose records can be
// refetched with an arbitrary optionalFields list.
var DefaultSupportedEntities = []string{
	"Account", "Asset", "Campaign", "Case", "Contact", "Contract", "Event",
	"Lead", "Opportunity", "Order", "Pricebook2", "Product2", "Quote",
	"Task", "User", "WorkOrder",
}

// SupportedEntities decides whether missing fields of an entity type can be refetched.
type SupportedEntities struct {
	names map[string]struct{}
}

// NewSupportedEntities builds a set from explicit apiNames.
func NewSupportedEntities(apiNames ...string) SupportedEntities {
	names := make(map[string]struct{}, len(apiNames))
	for _, n := range apiNames {
		names[n] = struct{}{}
	}
	return SupportedEntities{names: names}
}

// Supports reports whether apiName is listed or carries a supported suffix.
func (s SupportedEntities) Supports(apiName string) bool {
	if _, ok := s.names[apiName]; ok {
		return true
	}
	for _, suffix := range supportedSuffixes {
		if strings.HasSuffix(apiName, suffix) {
			return true
		}
	}
	return false
}
