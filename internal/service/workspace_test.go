package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ev-service-portal/internal/assist"
	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/identity"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/push"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

type fixture struct {
	hub      *push.MemoryHub
	pool     *push.Pool
	chat     *fakeChat
	profile  *fakeProfile
	orders   *fakeResource[model.Order]
	store    *identity.Store
	registry *Registry
}

func newFixture(t *testing.T, suggest *assist.Suggester) *fixture {
	t.Helper()
	store, err := identity.Open(context.Background(), filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := push.NewMemoryHub()
	f := &fixture{
		hub:     hub,
		pool:    push.NewPool(push.MemoryDialer(hub), logger.Nop()),
		chat:    &fakeChat{history: map[string][]model.Message{}},
		profile: &fakeProfile{},
		orders:  &fakeResource[model.Order]{},
		store:   store,
	}
	f.registry = NewRegistry(RegistryOptions{
		Backend: Backend{
			Orders:   f.orders,
			Services: &fakeResource[model.Service]{},
			Packages: &fakeResource[model.ServicePackage]{},
			Chat:     f.chat,
			Profile:  f.profile,
		},
		Pool:      f.pool,
		Identity:  store,
		Suggester: suggest,
		Settings:  Settings{PageSize: 10, Policy: listview.DefaultPolicy},
		IdleTTL:   time.Minute,
	}, logger.Nop())
	t.Cleanup(f.registry.Close)
	return f
}

var staff = User{ID: "staff-1", Name: "Lan", Role: RoleStaff}

func TestWorkspace_ScreensUseSchemas(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.orders.items = []model.Order{
		{ID: 1, Code: "DH001", CustomerName: "An", Status: model.OrderPending, CreatedAt: base},
		{ID: 2, Code: "DH002", CustomerName: "Bình", Status: model.OrderCompleted, CreatedAt: base.Add(time.Hour)},
		{ID: 3, Code: "DH003", CustomerName: "Chi", Status: model.OrderPending, CreatedAt: base.Add(2 * time.Hour)},
	}

	w := f.registry.Get(context.Background(), staff)
	require.NoError(t, w.Orders.Refresh(context.Background()))

	screen := w.Orders.Screen()
	screen.SetFilter("status", "PENDING")
	view := screen.SetSort("createdAt", listview.Desc)

	assert.Equal(t, 2, view.TotalCount)
	require.Len(t, view.Items, 2)
	assert.Equal(t, int64(3), view.Items[0].ID)
	assert.Equal(t, int64(1), view.Items[1].ID)
}

func TestWorkspace_SessionsAreSharedAndReleased(t *testing.T) {
	f := newFixture(t, nil)
	w := f.registry.Get(context.Background(), staff)

	s1, err := w.Session(context.Background(), "c-1")
	require.NoError(t, err)
	s2, err := w.Session(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = w.Session(context.Background(), "c-2")
	require.NoError(t, err)
	assert.Equal(t, 2, w.Sessions())
	assert.Equal(t, 2, f.pool.Active())

	assert.True(t, w.CloseSession("c-1"))
	assert.False(t, w.CloseSession("c-1"))
	assert.Equal(t, 1, f.pool.Active())

	w.Close()
	assert.Equal(t, 0, f.pool.Active())
	assert.False(t, f.pool.Connected())

	_, err = w.Session(context.Background(), "c-3")
	assert.ErrorIs(t, err, ErrWorkspaceClosed)
}

func TestWorkspace_ConcurrentFirstSessionOpensOnce(t *testing.T) {
	f := newFixture(t, nil)
	w := f.registry.Get(context.Background(), staff)
	release := f.chat.block()

	sessions := make([]*chat.Session, 5)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := w.Session(context.Background(), "c-1")
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	<-f.chat.waiting
	release()
	wg.Wait()

	for _, s := range sessions[1:] {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, w.Sessions())
	assert.Equal(t, 1, f.pool.Active())
}

func TestWorkspace_GuestKeepsOneSession(t *testing.T) {
	f := newFixture(t, nil)
	guest := User{ID: "visitor-7", Role: RoleGuest}

	inbox := f.registry.Get(context.Background(), staff)
	var mu sync.Mutex
	var announced []model.Conversation
	stop, err := inbox.WatchConversations(context.Background(), func(c model.Conversation) {
		mu.Lock()
		announced = append(announced, c)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stop()

	w := f.registry.Get(context.Background(), guest)
	first, err := w.StartConversation(context.Background(), "Đặt lịch bảo dưỡng")
	require.NoError(t, err)
	second, err := w.StartConversation(context.Background(), "Hỏi giá")
	require.NoError(t, err)

	assert.Regexp(t, `^guest-[0-9a-f-]{36}$`, first.GuestSession)
	assert.Equal(t, first.GuestSession, second.GuestSession)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, announced, 2)
	assert.Equal(t, first.ID, announced[0].ID)
}

func TestWorkspace_ProfileCacheAndNotifications(t *testing.T) {
	f := newFixture(t, nil)
	f.profile.err = errors.New("timeout")
	f.profile.notifications = []model.Notification{
		{ID: 11, Title: "Lịch hẹn", CreatedAt: time.Now()},
		{ID: 12, Title: "Khuyến mãi", IsRead: true, CreatedAt: time.Now()},
	}
	f.profile.reminders = []model.Reminder{{ID: 21, Title: "Thay lốp"}}
	w := f.registry.Get(context.Background(), staff)

	p, err := w.Profile(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, p.UnreadCount)
	assert.Contains(t, p.Errors, "reviews")
	assert.Len(t, p.Vehicles, 1)

	_, err = w.Profile(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.profile.loads, "cached profile is reused")

	view := w.Notifications.SetFilter("read", "unread")
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(11), view.Items[0].ID)

	require.NoError(t, w.MarkNotificationRead(context.Background(), 11))
	assert.Equal(t, 0, w.Notifications.View().TotalCount)

	p, err = w.Profile(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, 0, p.UnreadCount)

	require.NoError(t, w.DismissReminder(context.Background(), 21))
	p, _ = w.Profile(context.Background(), 5, false)
	assert.True(t, p.Reminders[0].Dismissed)

	_, err = w.Profile(context.Background(), 5, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.profile.loads)
}

func TestWorkspace_ProfileIsACopy(t *testing.T) {
	f := newFixture(t, nil)
	f.profile.notifications = []model.Notification{{ID: 11, Title: "Lịch hẹn", CreatedAt: time.Now()}}
	w := f.registry.Get(context.Background(), staff)

	p, err := w.Profile(context.Background(), 5, false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.MarkNotificationRead(context.Background(), 11) }()
	read := p.Notifications[0].IsRead
	require.NoError(t, <-done)

	assert.False(t, read)
	assert.False(t, p.Notifications[0].IsRead, "caller's copy is not mutated")
	assert.Equal(t, 1, p.UnreadCount)

	p.Notifications[0].Title = "changed"
	fresh, err := w.Profile(context.Background(), 5, false)
	require.NoError(t, err)
	assert.True(t, fresh.Notifications[0].IsRead)
	assert.Equal(t, "Lịch hẹn", fresh.Notifications[0].Title)
	assert.Equal(t, 0, fresh.UnreadCount)
}

func TestWorkspace_GuestUsesCustomerCachedOnDevice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	customer := User{ID: "user-3", Role: RoleCustomer, CustomerID: "cus-3", Device: "dev-1"}
	f.registry.Get(ctx, customer)

	guest := f.registry.Get(ctx, User{ID: "visitor-1", Role: RoleGuest, Device: "dev-1"})
	conv, err := guest.StartConversation(ctx, "Hỏi giá")
	require.NoError(t, err)
	assert.Equal(t, "cus-3", conv.CustomerID)
	assert.Empty(t, conv.GuestSession)

	other := f.registry.Get(ctx, User{ID: "visitor-2", Role: RoleGuest, Device: "dev-2"})
	conv, err = other.StartConversation(ctx, "Hỏi giá")
	require.NoError(t, err)
	assert.Empty(t, conv.CustomerID)
	assert.NotEmpty(t, conv.GuestSession)

	require.NoError(t, f.registry.SignOut(ctx, customer))
	conv, err = guest.StartConversation(ctx, "Hỏi giá")
	require.NoError(t, err)
	assert.Empty(t, conv.CustomerID, "signed-out device falls back to the guest session")
	assert.Regexp(t, `^guest-`, conv.GuestSession)
}

type cannedLLM struct{}

func (cannedLLM) Name() string { return "canned" }

func (cannedLLM) Complete(context.Context, *assist.CompletionRequest) (*assist.CompletionResponse, error) {
	return &assist.CompletionResponse{Content: "  Dạ, anh chờ em kiểm tra nhé.  ", Model: "canned-1"}, nil
}

func (cannedLLM) CompleteStream(_ context.Context, _ *assist.CompletionRequest, fn assist.TokenFunc) (*assist.CompletionResponse, error) {
	if err := fn("Dạ", 0); err != nil {
		return nil, err
	}
	return &assist.CompletionResponse{Content: "Dạ", Model: "canned-1"}, nil
}

func TestWorkspace_Suggest(t *testing.T) {
	t.Run("disabled without a provider", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.registry.Get(context.Background(), staff)
		_, err := w.Suggest(context.Background(), "c-1")
		assert.ErrorIs(t, err, ErrSuggestionsDisabled)
	})

	t.Run("drafts from the thread", func(t *testing.T) {
		f := newFixture(t, assist.NewSuggester(cannedLLM{}, assist.Options{}, logger.Nop()))
		f.chat.history["c-1"] = []model.Message{
			{ID: "m-1", ConversationID: "c-1", SenderID: "cus-1", Content: "Xe tôi báo lỗi pin"},
		}
		w := f.registry.Get(context.Background(), staff)

		s, err := w.Suggest(context.Background(), "c-1")
		require.NoError(t, err)
		assert.Equal(t, "Dạ, anh chờ em kiểm tra nhé.", s.Text)
		assert.Equal(t, "canned", s.Provider)

		var tokens []string
		_, err = w.SuggestStream(context.Background(), "c-1", func(tok string, _ int) error {
			tokens = append(tokens, tok)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Dạ"}, tokens)
	})

	t.Run("empty thread", func(t *testing.T) {
		f := newFixture(t, assist.NewSuggester(cannedLLM{}, assist.Options{}, logger.Nop()))
		w := f.registry.Get(context.Background(), staff)
		_, err := w.Suggest(context.Background(), "c-9")
		assert.ErrorIs(t, err, assist.ErrNoTranscript)
	})
}

func TestPackageSchema_SortsByDiscountedPrice(t *testing.T) {
	items := []model.ServicePackage{
		{ID: 1, Name: "Cơ bản", Price: 100000, DiscountPercent: 0},
		{ID: 2, Name: "Tiết kiệm", Price: 150000, DiscountPercent: 50},
		{ID: 3, Name: "Cao cấp", Price: 200000, DiscountPercent: 15},
	}
	p := listview.NewParams(10)
	p.SortKey, p.SortDir = "discountedPrice", listview.Asc

	view := listview.Derive(items, p, PackageSchema)
	ids := make([]int64, 0, len(view.Items))
	for _, it := range view.Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int64{2, 1, 3}, ids)
}
