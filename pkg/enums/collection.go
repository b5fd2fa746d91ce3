package enums

import "fmt"

// Collection names the two quantity-bearing line item collections.
type Collection string

const (
	CollectionCart  Collection = "cart"
	CollectionSaved Collection = "saved"
)

var validCollections = []Collection{
	CollectionCart,
	CollectionSaved,
}

// IsValid reports whether the value matches the canonical collection enum.
func (c Collection) IsValid() bool {
	for _, candidate := range validCollections {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCollection converts the raw string to a Collection.
func ParseCollection(value string) (Collection, error) {
	for _, candidate := range validCollections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid collection %q", value)
}
