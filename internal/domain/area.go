package domain

import "time"

// ServiceArea describes coverage for a forward sortation area. Rows are maintained by staff
// out-of-band; the booking engine only reads them.
type ServiceArea struct {
	FSA               string
	Tier              string
	TravelFeeInternal int64
	Active            bool
	UpdatedAt         time.Time
}

// Anchors is the resolved location context for the postal code a customer entered.
// TravelFeeInternal is a private pricing input and is never serialised.
type Anchors struct {
	PostalCode        string `json:"postalCode"`
	FSA               string `json:"fsa"`
	City              string `json:"city"`
	Province          string `json:"province"`
	Tier              string `json:"tier"`
	TravelFeeInternal int64  `json:"-"`
}

// ValidFor reports whether the anchors were resolved for the given canonical postal code.
func (a Anchors) ValidFor(postalCode string) bool {
	return a.PostalCode != "" && a.Tier != "" && a.PostalCode == postalCode
}
