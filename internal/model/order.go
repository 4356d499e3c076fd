// Package model defines the records the portal renders and mutates.
package model

import (
	"time"
)

// OrderStatus is the lifecycle state of a service order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderInProgress, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Order is a service order placed for a customer's vehicle.
type Order struct {
	ID            int64       `json:"id" mapstructure:"id"`
	Code          string      `json:"code" mapstructure:"code"`
	CustomerID    int64       `json:"customer_id" mapstructure:"customerId"`
	CustomerName  string      `json:"customer_name" mapstructure:"customerName"`
	CustomerPhone string      `json:"customer_phone" mapstructure:"customerPhone"`
	LicensePlate  string      `json:"license_plate" mapstructure:"licensePlate"`
	VehicleModel  string      `json:"vehicle_model" mapstructure:"vehicleModel"`
	ServiceCenter string      `json:"service_center" mapstructure:"serviceCenter"`
	Status        OrderStatus `json:"status" mapstructure:"status"`
	TotalAmount   float64     `json:"total_amount" mapstructure:"totalAmount"`
	Note          string      `json:"note,omitempty" mapstructure:"note"`
	CreatedAt     time.Time   `json:"created_at" mapstructure:"createdAt"`
	ScheduledAt   *time.Time  `json:"scheduled_at,omitempty" mapstructure:"scheduledAt"`
}

// Key returns the record identifier.
func (o Order) Key() int64 { return o.ID }
