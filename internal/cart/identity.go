package cart

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity is the canonical key for a purchasable line: the product id alone,
// or "productID::variantID" when a variant is selected. "::" cannot appear in
// a UUID, so the join is unambiguous.
type Identity string

const identitySeparator = "::"

// Key derives the identity for a product/variant pair.
func Key(productID uuid.UUID, variantID *uuid.UUID) Identity {
	if variantID == nil || *variantID == uuid.Nil {
		return Identity(productID.String())
	}
	return Identity(productID.String() + identitySeparator + variantID.String())
}

// Parse splits an identity back into its product and optional variant ids.
func Parse(value string) (uuid.UUID, *uuid.UUID, error) {
	head, tail, found := strings.Cut(value, identitySeparator)

	productID, err := uuid.Parse(head)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("parse identity product id: %w", err)
	}
	if !found {
		return productID, nil, nil
	}

	variantID, err := uuid.Parse(tail)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("parse identity variant id: %w", err)
	}
	return productID, &variantID, nil
}

// ProductID returns the product component of the identity.
func (i Identity) ProductID() (uuid.UUID, error) {
	productID, _, err := Parse(string(i))
	return productID, err
}

func (i Identity) String() string {
	return string(i)
}
