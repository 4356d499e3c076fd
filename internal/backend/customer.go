package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

func customerList[T any](ctx context.Context, c *Client, customerID int64, section string, decode func(map[string]any) (T, error)) ([]T, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/customers/%d/%s", customerID, section), nil)
	if err != nil {
		return nil, err
	}
	return decodeList(data, decode)
}

// Vehicles lists a customer's vehicles.
func (c *Client) Vehicles(ctx context.Context, customerID int64) ([]model.Vehicle, error) {
	return customerList(ctx, c, customerID, "vehicles", decodeVehicle)
}

// Bookings lists a customer's bookings.
func (c *Client) Bookings(ctx context.Context, customerID int64) ([]model.Booking, error) {
	return customerList(ctx, c, customerID, "bookings", decodeBooking)
}

// Reviews lists a customer's reviews.
func (c *Client) Reviews(ctx context.Context, customerID int64) ([]model.Review, error) {
	return customerList(ctx, c, customerID, "reviews", decodeReview)
}

// Notifications lists a customer's notifications.
func (c *Client) Notifications(ctx context.Context, customerID int64) ([]model.Notification, error) {
	return customerList(ctx, c, customerID, "notifications", decodeNotification)
}

// Reminders lists a customer's maintenance reminders.
func (c *Client) Reminders(ctx context.Context, customerID int64) ([]model.Reminder, error) {
	return customerList(ctx, c, customerID, "reminders", decodeReminder)
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", id), nil)
	return err
}

// DismissReminder dismisses one reminder.
func (c *Client) DismissReminder(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/reminders/%d/dismiss", id), nil)
	return err
}
