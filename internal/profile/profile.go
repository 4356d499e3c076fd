// Package profile assembles the customer profile page from its sections.
package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// Section names, also the keys of CustomerProfile.Errors.
const (
	SectionVehicles      = "vehicles"
	SectionBookings      = "bookings"
	SectionReviews       = "reviews"
	SectionNotifications = "notifications"
	SectionReminders     = "reminders"
)

// API is the backend surface the profile page reads.
type API interface {
	Vehicles(ctx context.Context, customerID int64) ([]model.Vehicle, error)
	Bookings(ctx context.Context, customerID int64) ([]model.Booking, error)
	Reviews(ctx context.Context, customerID int64) ([]model.Review, error)
	Notifications(ctx context.Context, customerID int64) ([]model.Notification, error)
	Reminders(ctx context.Context, customerID int64) ([]model.Reminder, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DismissReminder(ctx context.Context, id int64) error
}

// Loader fetches profile sections concurrently.
type Loader struct {
	api         API
	concurrency int
	logger      *logger.Logger
}

// NewLoader creates a loader running at most concurrency fetches at once.
func NewLoader(api API, concurrency int, log *logger.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Loader{api: api, concurrency: concurrency, logger: log.Named("profile")}
}

// Load fetches every section. A failing section is recorded in Errors with
// its user-facing message and does not affect the others.
func (l *Loader) Load(ctx context.Context, customerID int64) model.CustomerProfile {
	p := model.CustomerProfile{
		CustomerID:    customerID,
		Vehicles:      []model.Vehicle{},
		Bookings:      []model.Booking{},
		Reviews:       []model.Review{},
		Notifications: []model.Notification{},
		Reminders:     []model.Reminder{},
	}

	var mu sync.Mutex
	fail := func(section string, err error) {
		l.logger.Warn("profile section failed",
			zap.Int64("customer_id", customerID),
			zap.String("section", section),
			zap.Error(err),
		)
		mu.Lock()
		defer mu.Unlock()
		if p.Errors == nil {
			p.Errors = make(map[string]string)
		}
		p.Errors[section] = backend.UserMessage(err)
	}

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	g.Go(section(ctx, SectionVehicles, customerID, l.api.Vehicles, &p.Vehicles, fail))
	g.Go(section(ctx, SectionBookings, customerID, l.api.Bookings, &p.Bookings, fail))
	g.Go(section(ctx, SectionReviews, customerID, l.api.Reviews, &p.Reviews, fail))
	g.Go(section(ctx, SectionNotifications, customerID, l.api.Notifications, &p.Notifications, fail))
	g.Go(section(ctx, SectionReminders, customerID, l.api.Reminders, &p.Reminders, fail))
	// Sections report failures through fail, never through the group.
	_ = g.Wait()

	p.UnreadCount = UnreadCount(p.Notifications)
	return p
}

// section returns a group task filling dst. Each task writes a distinct
// field, so only Errors needs the lock.
func section[T any](ctx context.Context, name string, customerID int64,
	fetch func(context.Context, int64) ([]T, error), dst *[]T, fail func(string, error),
) func() error {
	return func() error {
		items, err := fetch(ctx, customerID)
		if err != nil {
			fail(name, err)
			return nil
		}
		if items != nil {
			*dst = items
		}
		return nil
	}
}

// MarkRead marks a notification read on the backend and in p.
func (l *Loader) MarkRead(ctx context.Context, p *model.CustomerProfile, id int64) error {
	if err := l.api.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if p == nil {
		return nil
	}
	for i := range p.Notifications {
		if p.Notifications[i].ID == id {
			p.Notifications[i].IsRead = true
		}
	}
	p.UnreadCount = UnreadCount(p.Notifications)
	return nil
}

// Dismiss dismisses a reminder on the backend and in p.
func (l *Loader) Dismiss(ctx context.Context, p *model.CustomerProfile, id int64) error {
	if err := l.api.DismissReminder(ctx, id); err != nil {
		return fmt.Errorf("dismiss reminder %d: %w", id, err)
	}
	if p == nil {
		return nil
	}
	for i := range p.Reminders {
		if p.Reminders[i].ID == id {
			p.Reminders[i].Dismissed = true
		}
	}
	return nil
}

// UnreadCount counts unread notifications.
func UnreadCount(ns []model.Notification) int {
	n := 0
	for _, item := range ns {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// NotificationSchema lists notifications newest first, filterable by read
// state and type.
var NotificationSchema = listview.Schema[model.Notification]{
	Filters: map[string]func(model.Notification) string{
		"read": func(n model.Notification) string {
			if n.IsRead {
				return "read"
			}
			return "unread"
		},
		"type": func(n model.Notification) string { return n.Type },
	},
	Date: func(n model.Notification) (time.Time, bool) {
		return n.CreatedAt, !n.CreatedAt.IsZero()
	},
	Search: []func(model.Notification) string{
		func(n model.Notification) string { return n.Title },
		func(n model.Notification) string { return n.Body },
	},
	Sorts: map[string]listview.Compare[model.Notification]{
		"createdAt": listview.ByTime(func(n model.Notification) time.Time { return n.CreatedAt }),
		"title":     listview.ByString(func(n model.Notification) string { return n.Title }),
	},
}
