package domain

import "strings"

// PropertyType enumerates the kinds of homes the business cleans.
type PropertyType string

const (
	PropertyTypeCondo    PropertyType = "condo"
	PropertyTypeHouse    PropertyType = "house"
	PropertyTypeTownhome PropertyType = "townhome"
)

// Valid reports whether the property type is one of the supported values.
func (p PropertyType) Valid() bool {
	switch p {
	case PropertyTypeCondo, PropertyTypeHouse, PropertyTypeTownhome:
		return true
	}
	return false
}

// CleaningType enumerates service levels.
type CleaningType string

const (
	CleaningTypeRegular CleaningType = "regular"
	CleaningTypeDeep    CleaningType = "deep"
	CleaningTypeMove    CleaningType = "move"
)

// Valid reports whether the cleaning type is supported.
func (c CleaningType) Valid() bool {
	switch c {
	case CleaningTypeRegular, CleaningTypeDeep, CleaningTypeMove:
		return true
	}
	return false
}

// Frequency enumerates how often a cleaning recurs.
type Frequency string

const (
	FrequencyOneTime  Frequency = "one-time"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether the frequency is supported.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Recurring reports whether the frequency repeats.
func (f Frequency) Recurring() bool {
	return f.Valid() && f != FrequencyOneTime
}

// AddOn enumerates optional flat-fee extras.
type AddOn string

const (
	AddOnFridge  AddOn = "fridge"
	AddOnOven    AddOn = "oven"
	AddOnWindows AddOn = "windows"
)

// Valid reports whether the add-on is supported.
func (a AddOn) Valid() bool {
	switch a {
	case AddOnFridge, AddOnOven, AddOnWindows:
		return true
	}
	return false
}

// ServiceSelection captures what the customer wants cleaned and how often.
type ServiceSelection struct {
	PropertyType        PropertyType `json:"propertyType"`
	Bedrooms            int          `json:"bedrooms"`
	Bathrooms           int          `json:"bathrooms"`
	CleaningType        CleaningType `json:"cleaningType"`
	Frequency           Frequency    `json:"frequency"`
	AddOns              []AddOn      `json:"addOns,omitempty"`
	SpecialInstructions string       `json:"specialInstructions,omitempty"`
}

// PaymentMethod enumerates how a customer intends to pay.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	// PaymentMethodETransfer is the deferred (pay-later) method; staff confirm receipt manually.
	PaymentMethodETransfer PaymentMethod = "etransfer"
)

// Valid reports whether the payment method is accepted.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodETransfer
}

// Deferred reports whether payment is collected outside the card flow.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentMethodETransfer
}

// UnitRequired reports whether a unit designator is mandatory for the property type.
func UnitRequired(p PropertyType) bool {
	return p == PropertyTypeCondo || p == PropertyTypeTownhome
}

// DiscountCodeVisible reports whether a discount code may be offered. Recurring bookings
// already carry a frequency discount, so codes are only offered for one-time cleanings.
func DiscountCodeVisible(f Frequency) bool {
	return !f.Recurring()
}

// ExtrasOffered reports whether cleaning-type upgrades and add-ons are offered in the booking
// flow. Pricing still honours any extras supplied.
func ExtrasOffered(f Frequency) bool {
	return !f.Recurring()
}

// ProvinceOntario is the only province currently served.
const ProvinceOntario = "Ontario"

// NormalizeProvince maps the short code and common spellings to the canonical province name.
func NormalizeProvince(value string) string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ON", "ONT", "ONTARIO":
		return ProvinceOntario
	}
	return strings.TrimSpace(value)
}
