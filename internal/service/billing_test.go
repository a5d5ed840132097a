package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garasku/garasku-api/internal/models"
)

func TestBillingTotal(t *testing.T) {
	require.InDelta(t, 168.0, BillingTotal(100, 50, 18), 1e-9)
	require.InDelta(t, 0.0, BillingTotal(0, 0, 0), 1e-9)
	require.InDelta(t, -10.0, BillingTotal(-30, 10, 10), 1e-9)
}

func TestRecomputeBillingDerivesPartsCost(t *testing.T) {
	billing := models.BillingRecord{
		Parts: []models.BillingPart{
			{Name: "Brake pads", Price: 40, Quantity: 2},
			{Name: "Oil filter", Price: 15, Quantity: 1},
		},
		LabourCost: 50,
		GST:        18,
	}
	RecomputeBilling(&billing)
	require.InDelta(t, 95.0, billing.PartsCost, 1e-9)
	require.InDelta(t, 163.0, billing.Total, 1e-9)
}

func TestRecomputeBillingZeroQuantityCountsOnce(t *testing.T) {
	billing := models.BillingRecord{
		Parts: []models.BillingPart{{Name: "Coolant", Price: 25}},
	}
	RecomputeBilling(&billing)
	require.InDelta(t, 25.0, billing.PartsCost, 1e-9)
}

func TestRecomputeBillingKeepsExplicitPartsCost(t *testing.T) {
	billing := models.BillingRecord{PartsCost: 120, LabourCost: 30, GST: 15}
	RecomputeBilling(&billing)
	require.InDelta(t, 120.0, billing.PartsCost, 1e-9)
	require.InDelta(t, 165.0, billing.Total, 1e-9)
}
