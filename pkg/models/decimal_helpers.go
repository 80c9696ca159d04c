package models

import "github.com/shopspring/decimal"

// ToFloat64 converts decimal to float64, dropping exactness. Used only
// at the indicator boundary where the math libraries want floats.
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// RoundQuantity rounds an order quantity down to the symbol's precision
// so the exchange never rejects it for step-size violations.
func RoundQuantity(symbol string, qty decimal.Decimal) decimal.Decimal {
	return qty.RoundFloor(QuantityPrecisionFor(symbol))
}
