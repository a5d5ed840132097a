package service

import "github.com/garasku/garasku-api/internal/models"

// BillingTotal computes the invoice total. Absent inputs default to zero and
// negative inputs pass through unchanged.
func BillingTotal(partsCost, labourCost, gst float64) float64 {
	return partsCost + labourCost + gst
}

// RecomputeBilling refreshes the derived cost fields on a billing record.
// When line items are present the parts cost is derived from them, otherwise
// the explicit parts cost is kept.
func RecomputeBilling(billing *models.BillingRecord) {
	if len(billing.Parts) > 0 {
		sum := 0.0
		for _, part := range billing.Parts {
			qty := part.Quantity
			if qty <= 0 {
				qty = 1
			}
			sum += part.Price * float64(qty)
		}
		billing.PartsCost = sum
	}
	billing.Total = BillingTotal(billing.PartsCost, billing.LabourCost, billing.GST)
}
