package domain

// BasisPoints expresses a rate in hundredths of a percent (1300 = 13%).
type BasisPoints int64

// RateCard holds the price tables used by the pricing engine. Amounts are in cents.
type RateCard struct {
	Currency     string
	PropertyBase map[PropertyType]int64
	// FallbackProperty prices property types missing from PropertyBase.
	FallbackProperty PropertyType
	PerBedroom       int64
	PerBathroom      int64
	CleaningFees     map[CleaningType]int64
	AddOnFees        map[AddOn]int64
	Discounts        map[Frequency]BasisPoints
	TaxRate          BasisPoints
}

// DefaultRateCard returns the published Ontario price list.
func DefaultRateCard() RateCard {
	return RateCard{
		Currency: "CAD",
		PropertyBase: map[PropertyType]int64{
			PropertyTypeCondo:    10000,
			PropertyTypeHouse:    15000,
			PropertyTypeTownhome: 12500,
		},
		FallbackProperty: PropertyTypeCondo,
		PerBedroom:       2000,
		PerBathroom:      2500,
		CleaningFees: map[CleaningType]int64{
			CleaningTypeRegular: 0,
			CleaningTypeDeep:    5000,
			CleaningTypeMove:    10000,
		},
		AddOnFees: map[AddOn]int64{
			AddOnFridge:  3000,
			AddOnOven:    3000,
			AddOnWindows: 4000,
		},
		Discounts: map[Frequency]BasisPoints{
			FrequencyWeekly:   2000,
			FrequencyBiweekly: 1500,
			FrequencyMonthly:  1000,
		},
		TaxRate: 1300,
	}
}

// Quote is a derived price breakdown. Subtotal is after any frequency discount; the travel
// fee is internal and only surfaces through HST and Total.
type Quote struct {
	Currency       string
	Subtotal       int64
	DiscountAmount int64
	HST            int64
	Total          int64
	TravelFee      int64
}

// SubtotalBeforeDiscount returns the subtotal prior to the frequency discount.
func (q Quote) SubtotalBeforeDiscount() int64 {
	return q.Subtotal + q.DiscountAmount
}

// ApplyRate multiplies amount by rate and rounds half-up to the nearest cent.
func ApplyRate(amount int64, rate BasisPoints) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return (amount*int64(rate) + 5000) / 10000
}
