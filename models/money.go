package models

import "github.com/shopspring/decimal"

// lineAmount is the exact price × quantity, before any rounding
func lineAmount(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// LineTotal returns price × quantity rounded to cents
func LineTotal(price float64, quantity int) float64 {
	return lineAmount(price, quantity).Round(2).InexactFloat64()
}

// Tally accumulates order lines exactly; only Total rounds.
type Tally struct {
	sum decimal.Decimal
}

func (t *Tally) AddLine(price float64, quantity int) {
	t.sum = t.sum.Add(lineAmount(price, quantity))
}

func (t *Tally) Add(amount float64) {
	t.sum = t.sum.Add(decimal.NewFromFloat(amount))
}

// Total is the running sum rounded to cents
func (t Tally) Total() float64 {
	return t.sum.Round(2).InexactFloat64()
}

// ApplyDiscount returns price reduced by a percentage, rounded to cents
func ApplyDiscount(price, percent float64) float64 {
	if percent <= 0 {
		return price
	}
	factor := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
	return decimal.NewFromFloat(price).Mul(factor).Round(2).InexactFloat64()
}

// Sum adds amounts without accumulating float error
func Sum(amounts ...float64) float64 {
	var t Tally
	for _, a := range amounts {
		t.Add(a)
	}
	return t.Total()
}
