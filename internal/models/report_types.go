package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminOrderFilter narrows the platform-wide order listing. Zero values match
// everything; To is exclusive.
type AdminOrderFilter struct {
	PaymentStatus     string
	FulfillmentStatus string
	From              time.Time
	To                time.Time
	Page              int
	Limit             int
}

// SellerSales is one seller's paid turnover.
type SellerSales struct {
	SellerID int64           `json:"sellerId"`
	Orders   int             `json:"totalOrders"`
	Sales    decimal.Decimal `json:"totalSales"`
}

// OrderStats are the platform KPIs shown on the admin dashboard.
type OrderStats struct {
	TotalOrders      int             `json:"totalOrders"`
	PaidOrders       int             `json:"paidOrders"`
	PendingOrders    int             `json:"pendingOrders"`
	TotalSales       decimal.Decimal `json:"totalSales"`
	CommissionEarned decimal.Decimal `json:"commissionEarned"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	TopSellers       []SellerSales   `json:"topSellers"`
	RecentOrders     []Order         `json:"recentOrders"`
}

// RevenueDay aggregates the paid orders created on one UTC day.
type RevenueDay struct {
	Date       string          `json:"date"`
	Orders     int             `json:"orders"`
	Sales      decimal.Decimal `json:"totalSales"`
	Commission decimal.Decimal `json:"totalCommission"`
}

// RevenueReport is the daily revenue series for the last Days days.
type RevenueReport struct {
	Days       int             `json:"days"`
	Daily      []RevenueDay    `json:"dailyRevenue"`
	Orders     int             `json:"totalOrders"`
	Sales      decimal.Decimal `json:"totalSales"`
	Commission decimal.Decimal `json:"totalCommission"`
}
