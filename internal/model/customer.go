package model

import (
	"time"
)

// Vehicle is an EV registered to a customer.
type Vehicle struct {
	ID           int64      `json:"id" mapstructure:"id"`
	LicensePlate string     `json:"license_plate" mapstructure:"licensePlate"`
	Brand        string     `json:"brand" mapstructure:"brand"`
	Model        string     `json:"model" mapstructure:"model"`
	Year         int        `json:"year" mapstructure:"year"`
	VIN          string     `json:"vin,omitempty" mapstructure:"vin"`
	BatteryKWh   float64    `json:"battery_kwh,omitempty" mapstructure:"batteryCapacity"`
	Mileage      int        `json:"mileage" mapstructure:"mileage"`
	LastService  *time.Time `json:"last_service,omitempty" mapstructure:"lastServiceDate"`
}

// Key returns the record identifier.
func (v Vehicle) Key() int64 { return v.ID }

// Booking is an appointment at a service center.
type Booking struct {
	ID            int64     `json:"id" mapstructure:"id"`
	Code          string    `json:"code" mapstructure:"code"`
	VehicleID     int64     `json:"vehicle_id" mapstructure:"vehicleId"`
	LicensePlate  string    `json:"license_plate" mapstructure:"licensePlate"`
	ServiceCenter string    `json:"service_center" mapstructure:"serviceCenter"`
	Status        string    `json:"status" mapstructure:"status"`
	ScheduledAt   time.Time `json:"scheduled_at" mapstructure:"scheduledAt"`
	Services      []string  `json:"services,omitempty" mapstructure:"services"`
}

// Key returns the record identifier.
func (b Booking) Key() int64 { return b.ID }

// Review is a customer's rating of a completed order.
type Review struct {
	ID        int64     `json:"id" mapstructure:"id"`
	OrderID   int64     `json:"order_id" mapstructure:"orderId"`
	Rating    int       `json:"rating" mapstructure:"rating"`
	Comment   string    `json:"comment" mapstructure:"comment"`
	CreatedAt time.Time `json:"created_at" mapstructure:"createdAt"`
}

// Key returns the record identifier.
func (r Review) Key() int64 { return r.ID }

// Notification is an in-app notice for a customer.
type Notification struct {
	ID        int64     `json:"id" mapstructure:"id"`
	Title     string    `json:"title" mapstructure:"title"`
	Body      string    `json:"body" mapstructure:"body"`
	Type      string    `json:"type" mapstructure:"type"`
	IsRead    bool      `json:"is_read" mapstructure:"isRead"`
	CreatedAt time.Time `json:"created_at" mapstructure:"createdAt"`
}

// Key returns the record identifier.
func (n Notification) Key() int64 { return n.ID }

// Reminder is a maintenance reminder for a vehicle.
type Reminder struct {
	ID        int64     `json:"id" mapstructure:"id"`
	VehicleID int64     `json:"vehicle_id" mapstructure:"vehicleId"`
	Title     string    `json:"title" mapstructure:"title"`
	Message   string    `json:"message" mapstructure:"message"`
	DueAt     time.Time `json:"due_at" mapstructure:"dueDate"`
	Dismissed bool      `json:"dismissed" mapstructure:"isDismissed"`
}

// Key returns the record identifier.
func (r Reminder) Key() int64 { return r.ID }

// CustomerProfile aggregates everything shown on the customer profile page.
// Sections that failed to load are listed in Errors and left empty.
type CustomerProfile struct {
	CustomerID    int64             `json:"customer_id"`
	Vehicles      []Vehicle         `json:"vehicles"`
	Bookings      []Booking         `json:"bookings"`
	Reviews       []Review          `json:"reviews"`
	Notifications []Notification    `json:"notifications"`
	Reminders     []Reminder        `json:"reminders"`
	UnreadCount   int               `json:"unread_count"`
	Errors        map[string]string `json:"errors,omitempty"`
}
