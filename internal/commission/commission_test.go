package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/netriver-marketplace/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewPolicyRejectsOutOfRangeRates(t *testing.T) {
	for _, rate := range []string{"-0.01", "1", "1.5"} {
		_, err := NewPolicy(d(rate))
		assert.Error(t, err, rate)
	}
	_, err := NewPolicy(d("0"))
	assert.NoError(t, err)
}

func TestSplit(t *testing.T) {
	p, err := NewPolicy(d("0.10"))
	require.NoError(t, err)

	tests := []struct {
		subtotal, commission, seller string
	}{
		{"300.00", "30.00", "270.00"},
		{"0.05", "0.01", "0.04"},
		{"0.04", "0.00", "0.04"},
		{"123.45", "12.35", "111.10"},
		{"999999.99", "100000.00", "899999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.subtotal, func(t *testing.T) {
			c, s := p.Split(d(tt.subtotal))
			assert.True(t, d(tt.commission).Equal(c), "commission %s", c)
			assert.True(t, d(tt.seller).Equal(s), "seller %s", s)
			assert.True(t, c.Add(s).Equal(d(tt.subtotal)))
		})
	}
}

func TestSplitAlwaysBalances(t *testing.T) {
	p, err := NewPolicy(d("0.075"))
	require.NoError(t, err)

	for cents := int64(0); cents < 5000; cents += 7 {
		subtotal := decimal.New(cents, -2)
		c, s := p.Split(subtotal)
		require.True(t, c.Add(s).Equal(subtotal), "subtotal %s", subtotal)
	}
}

func TestPerSeller(t *testing.T) {
	p, err := NewPolicy(d("0.10"))
	require.NoError(t, err)

	shares := p.PerSeller([]models.OrderItem{
		{SellerID: 7, LineTotal: d("100.00")},
		{SellerID: 9, LineTotal: d("50.00")},
		{SellerID: 7, LineTotal: d("20.00")},
	})

	require.Len(t, shares, 2)
	assert.Equal(t, int64(7), shares[0].SellerID)
	assert.True(t, d("120.00").Equal(shares[0].Subtotal))
	assert.True(t, d("12.00").Equal(shares[0].Commission))
	assert.True(t, d("108.00").Equal(shares[0].Payout))
	assert.True(t, d("5.00").Equal(shares[1].Commission))
}
