package model

import (
	"math"
	"time"
)

// Service is a single bookable maintenance or repair service.
type Service struct {
	ID               int64     `json:"id" mapstructure:"id"`
	Code             string    `json:"code" mapstructure:"code"`
	Name             string    `json:"name" mapstructure:"name"`
	Description      string    `json:"description" mapstructure:"description"`
	Category         string    `json:"category" mapstructure:"category"`
	Price            float64   `json:"price" mapstructure:"price"`
	EstimatedMinutes int       `json:"estimated_minutes" mapstructure:"estimatedMinutes"`
	IsActive         bool      `json:"is_active" mapstructure:"isActive"`
	CreatedAt        time.Time `json:"created_at" mapstructure:"createdAt"`
}

// Key returns the record identifier.
func (s Service) Key() int64 { return s.ID }

// ServicePackage is a prepaid bundle of service credits.
type ServicePackage struct {
	ID              int64     `json:"id" mapstructure:"id"`
	Code            string    `json:"code" mapstructure:"code"`
	Name            string    `json:"name" mapstructure:"name"`
	Description     string    `json:"description" mapstructure:"description"`
	Price           float64   `json:"price" mapstructure:"price"`
	DiscountPercent float64   `json:"discount_percent" mapstructure:"discountPercent"`
	TotalCredits    int       `json:"total_credits" mapstructure:"totalCredits"`
	ValidityDays    int       `json:"validity_days" mapstructure:"validityDays"`
	IsActive        bool      `json:"is_active" mapstructure:"isActive"`
	ServiceIDs      []int64   `json:"service_ids,omitempty" mapstructure:"serviceIds"`
	CreatedAt       time.Time `json:"created_at" mapstructure:"createdAt"`
}

// Key returns the record identifier.
func (p ServicePackage) Key() int64 { return p.ID }

// DiscountedPrice is the price after the package discount, rounded to the
// nearest whole currency unit.
func (p ServicePackage) DiscountedPrice() float64 {
	return DiscountedPrice(p.Price, p.DiscountPercent)
}

// DiscountedPrice applies discountPercent to price and rounds half away from zero.
func DiscountedPrice(price, discountPercent float64) float64 {
	return math.Round(price * (100 - discountPercent) / 100)
}

// ActiveStatus renders an is-active flag as the status value used by
// filters and toggles.
func ActiveStatus(active bool) string {
	if active {
		return StatusActive
	}
	return StatusInactive
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)
