package profile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

type fakeAPI struct {
	failing   map[string]error
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	marked    []int64
	dismissed []int64
}

func (f *fakeAPI) enter(section string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return f.failing[section]
}

func (f *fakeAPI) Vehicles(context.Context, int64) ([]model.Vehicle, error) {
	if err := f.enter(SectionVehicles); err != nil {
		return nil, err
	}
	return []model.Vehicle{{ID: 1, LicensePlate: "51H-123.45", Brand: "VinFast", Model: "VF 8"}}, nil
}

func (f *fakeAPI) Bookings(context.Context, int64) ([]model.Booking, error) {
	if err := f.enter(SectionBookings); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeAPI) Reviews(context.Context, int64) ([]model.Review, error) {
	if err := f.enter(SectionReviews); err != nil {
		return nil, err
	}
	return []model.Review{{ID: 3, Rating: 5}}, nil
}

func (f *fakeAPI) Notifications(context.Context, int64) ([]model.Notification, error) {
	if err := f.enter(SectionNotifications); err != nil {
		return nil, err
	}
	return []model.Notification{
		{ID: 10, Title: "Lịch hẹn", IsRead: false},
		{ID: 11, Title: "Khuyến mãi", IsRead: true},
		{ID: 12, Title: "Bảo dưỡng", IsRead: false},
	}, nil
}

func (f *fakeAPI) Reminders(context.Context, int64) ([]model.Reminder, error) {
	if err := f.enter(SectionReminders); err != nil {
		return nil, err
	}
	return []model.Reminder{{ID: 20, Title: "Kiểm tra pin"}}, nil
}

func (f *fakeAPI) MarkNotificationRead(_ context.Context, id int64) error {
	f.marked = append(f.marked, id)
	return f.failing["mark"]
}

func (f *fakeAPI) DismissReminder(_ context.Context, id int64) error {
	f.dismissed = append(f.dismissed, id)
	return f.failing["dismiss"]
}

func TestLoad_AllSections(t *testing.T) {
	api := &fakeAPI{}
	p := NewLoader(api, 2, logger.Nop()).Load(context.Background(), 7)

	assert.Equal(t, int64(7), p.CustomerID)
	assert.Len(t, p.Vehicles, 1)
	assert.NotNil(t, p.Bookings, "empty sections render as empty lists")
	assert.Empty(t, p.Bookings)
	assert.Len(t, p.Reviews, 1)
	assert.Len(t, p.Reminders, 1)
	assert.Equal(t, 2, p.UnreadCount)
	assert.Nil(t, p.Errors)
	assert.LessOrEqual(t, api.maxFlight.Load(), int32(2))
}

func TestLoad_SectionFailureIsIsolated(t *testing.T) {
	api := &fakeAPI{failing: map[string]error{
		SectionReviews:   &backend.RequestError{StatusCode: 500, Message: "Không tải được đánh giá"},
		SectionReminders: errors.New("timeout"),
	}}
	p := NewLoader(api, 0, logger.Nop()).Load(context.Background(), 7)

	assert.Len(t, p.Vehicles, 1)
	assert.Len(t, p.Notifications, 3)
	assert.Empty(t, p.Reviews)
	assert.Equal(t, map[string]string{
		SectionReviews:   "Không tải được đánh giá",
		SectionReminders: backend.FallbackMessage,
	}, p.Errors)
}

func TestMarkReadAndDismiss(t *testing.T) {
	api := &fakeAPI{}
	l := NewLoader(api, 3, logger.Nop())
	p := l.Load(context.Background(), 7)

	require.NoError(t, l.MarkRead(context.Background(), &p, 10))
	assert.Equal(t, 1, p.UnreadCount)
	assert.True(t, p.Notifications[0].IsRead)

	require.NoError(t, l.Dismiss(context.Background(), &p, 20))
	assert.True(t, p.Reminders[0].Dismissed)
	assert.Equal(t, []int64{10}, api.marked)
	assert.Equal(t, []int64{20}, api.dismissed)

	api.failing = map[string]error{"mark": errors.New("boom")}
	err := l.MarkRead(context.Background(), &p, 12)
	require.Error(t, err)
	assert.Equal(t, 1, p.UnreadCount, "local state unchanged on failure")
}

func TestNotificationSchema(t *testing.T) {
	ns := []model.Notification{
		{ID: 1, Title: "Lịch hẹn", IsRead: true, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Title: "Bảo dưỡng định kỳ", CreatedAt: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)},
		{ID: 3, Title: "Khuyến mãi", CreatedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}

	p := listview.NewParams(10).WithFilter("read", "unread")
	p.SortKey = "createdAt"
	p.SortDir = listview.Desc
	view := listview.Derive(ns, p, NotificationSchema)

	require.Len(t, view.Items, 2)
	assert.Equal(t, int64(2), view.Items[0].ID)
	assert.Equal(t, int64(3), view.Items[1].ID)
}
