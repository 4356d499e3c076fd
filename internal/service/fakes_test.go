package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/capitalize-ai/ev-service-portal/internal/model"
)

type fakeResource[T any] struct {
	items []T
}

func (f *fakeResource[T]) List(context.Context) ([]T, error) { return f.items, nil }

func (f *fakeResource[T]) Create(_ context.Context, draft T) (*T, error) { return &draft, nil }

func (f *fakeResource[T]) Update(_ context.Context, _ int64, draft T) (*T, error) {
	return &draft, nil
}

func (f *fakeResource[T]) Delete(context.Context, int64) error { return nil }

func (f *fakeResource[T]) SetStatus(context.Context, int64, string) error { return nil }

type fakeChat struct {
	mu      sync.Mutex
	history map[string][]model.Message
	started []model.Conversation
	nextID  int

	// When gate is set, history loads signal waiting and block until gate
	// is closed.
	gate    chan struct{}
	waiting chan struct{}
}

func (f *fakeChat) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	gate, waiting := f.gate, f.waiting
	f.mu.Unlock()

	if gate != nil {
		select {
		case waiting <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[conversationID], nil
}

func (f *fakeChat) block() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.waiting = make(chan struct{}, 1)
	gate := f.gate
	return func() { close(gate) }
}

func (f *fakeChat) SendMessage(_ context.Context, req model.SendMessageRequest) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return &model.Message{
		ID:             fmt.Sprintf("m-%d", f.nextID),
		ClientID:       req.ClientID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
	}, nil
}

func (f *fakeChat) Conversations(context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Conversation(nil), f.started...), nil
}

func (f *fakeChat) StartConversation(_ context.Context, customerID, guestSession, subject string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv := model.Conversation{
		ID:           fmt.Sprintf("c-%d", f.nextID),
		CustomerID:   customerID,
		GuestSession: guestSession,
		Subject:      subject,
		Status:       "open",
	}
	f.started = append(f.started, conv)
	return &conv, nil
}

type fakeProfile struct {
	mu            sync.Mutex
	loads         int
	notifications []model.Notification
	reminders     []model.Reminder
	err           error
}

func (f *fakeProfile) Vehicles(context.Context, int64) ([]model.Vehicle, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	return []model.Vehicle{{ID: 1, LicensePlate: "51H-123.45"}}, nil
}

func (f *fakeProfile) Bookings(context.Context, int64) ([]model.Booking, error) { return nil, nil }

func (f *fakeProfile) Reviews(context.Context, int64) ([]model.Review, error) { return nil, f.err }

func (f *fakeProfile) Notifications(context.Context, int64) ([]model.Notification, error) {
	return f.notifications, nil
}

func (f *fakeProfile) Reminders(context.Context, int64) ([]model.Reminder, error) {
	return f.reminders, nil
}

func (f *fakeProfile) MarkNotificationRead(context.Context, int64) error { return nil }

func (f *fakeProfile) DismissReminder(context.Context, int64) error { return nil }
