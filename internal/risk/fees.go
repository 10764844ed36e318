package risk

// FeeModel describes the proportional trading costs applied to fills.
// Sell tax applies to real-money accounts only; paper accounts are built with
// a flat (possibly zero) rate and no tax.
type FeeModel struct {
	BuyFeeRate  float64 // commission rate on the buy notional
	SellFeeRate float64 // commission rate on the sell notional
	SellTaxRate float64 // transaction tax rate on the sell notional
}

// BuyFee returns the commission for a buy of the given notional.
func (f FeeModel) BuyFee(notional float64) float64 {
	return notional * f.BuyFeeRate
}

// SellFee returns the commission for a sell of the given notional.
func (f FeeModel) SellFee(notional float64) float64 {
	return notional * f.SellFeeRate
}

// SellTax returns the transaction tax for a sell of the given notional.
func (f FeeModel) SellTax(notional float64) float64 {
	return notional * f.SellTaxRate
}

// PaperFees builds the fee model for a simulated account: a single flat rate
// on both sides and no tax.
func PaperFees(flatRate float64) FeeModel {
	return FeeModel{BuyFeeRate: flatRate, SellFeeRate: flatRate}
}
