// Package service keeps the per-user state of the portal: the list screens,
// their dispatchers, the mounted chat sessions and the loaded customer
// profiles. Each signed-in user gets one Workspace, held by a Registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/ev-service-portal/internal/assist"
	"github.com/capitalize-ai/ev-service-portal/internal/backend"
	"github.com/capitalize-ai/ev-service-portal/internal/chat"
	"github.com/capitalize-ai/ev-service-portal/internal/dispatch"
	"github.com/capitalize-ai/ev-service-portal/internal/identity"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/profile"
	"github.com/capitalize-ai/ev-service-portal/internal/push"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

var (
	// ErrSuggestionsDisabled is returned when no LLM provider is configured.
	ErrSuggestionsDisabled = errors.New("reply suggestions are not configured")
	// ErrWorkspaceClosed is returned after the workspace was evicted.
	ErrWorkspaceClosed = errors.New("workspace closed")
)

// ChatAPI is the backend surface of the support chat.
type ChatAPI interface {
	chat.API
	Conversations(ctx context.Context) ([]model.Conversation, error)
	StartConversation(ctx context.Context, customerID, guestSession, subject string) (*model.Conversation, error)
}

// Backend bundles the backend resources a workspace talks to.
type Backend struct {
	Orders   dispatch.API[model.Order]
	Services dispatch.API[model.Service]
	Packages dispatch.API[model.ServicePackage]
	Chat     ChatAPI
	Profile  profile.API
}

// FromClient binds every resource to one REST client.
func FromClient(c *backend.Client) Backend {
	return Backend{
		Orders:   c.Orders(),
		Services: c.Services(),
		Packages: c.Packages(),
		Chat:     c,
		Profile:  c,
	}
}

// User is the signed-in principal owning a workspace. Device identifies
// the browser or app install the token was issued to, when known.
type User struct {
	ID         string
	Name       string
	Role       string
	CustomerID string
	Device     string
}

// Guest reports whether the user has no customer account.
func (u User) Guest() bool {
	return u.Role == RoleGuest
}

// scope is the identity store partition of the user.
func (u User) scope() string {
	if u.Device != "" {
		return u.Device
	}
	return u.ID
}

// Roles carried in the auth token.
const (
	RoleStaff    = "staff"
	RoleCustomer = "customer"
	RoleGuest    = "guest"
)

// Settings holds the workspace knobs taken from configuration.
type Settings struct {
	PageSize           int
	Policy             listview.Policy
	Typing             chat.TypingConfig
	ProfileConcurrency int
	Clock              chat.Clock
}

// Workspace is the state of one user.
type Workspace struct {
	user     User
	backend  Backend
	pool     *push.Pool
	identity *identity.Store
	suggest  *assist.Suggester
	profiles *profile.Loader
	settings Settings
	logger   *logger.Logger

	Orders        *dispatch.Dispatcher[model.Order]
	Services      *dispatch.Dispatcher[model.Service]
	Packages      *dispatch.Dispatcher[model.ServicePackage]
	Notifications *listview.Screen[model.Notification]

	opens    singleflight.Group
	lastSeen atomic.Int64

	mu       sync.Mutex
	closed   bool
	sessions map[string]*chat.Session
	loaded   map[int64]*model.CustomerProfile
}

func newWorkspace(user User, b Backend, pool *push.Pool, store *identity.Store, suggest *assist.Suggester, settings Settings, log *logger.Logger) *Workspace {
	log = log.With(zap.String("user_id", user.ID))
	w := &Workspace{
		user:     user,
		backend:  b,
		pool:     pool,
		identity: store,
		suggest:  suggest,
		profiles: profile.NewLoader(b.Profile, settings.ProfileConcurrency, log),
		settings: settings,
		logger:   log.Named("workspace"),
		sessions: make(map[string]*chat.Session),
		loaded:   make(map[int64]*model.CustomerProfile),
	}
	w.Orders = dispatch.New(
		listview.NewScreen(ScreenOrders, OrderSchema, settings.PageSize, settings.Policy),
		b.Orders, dispatch.OrderOptions(), log)
	w.Services = dispatch.New(
		listview.NewScreen(ScreenServices, ServiceSchema, settings.PageSize, settings.Policy),
		b.Services, dispatch.ServiceOptions(), log)
	w.Packages = dispatch.New(
		listview.NewScreen(ScreenPackages, PackageSchema, settings.PageSize, settings.Policy),
		b.Packages, dispatch.PackageOptions(), log)
	w.Notifications = listview.NewScreen(ScreenNotifications, profile.NotificationSchema, settings.PageSize, settings.Policy)
	return w
}

// User returns the owner of the workspace.
func (w *Workspace) User() User {
	return w.user
}

// Conversations lists the support conversations visible to the user.
func (w *Workspace) Conversations(ctx context.Context) ([]model.Conversation, error) {
	convs, err := w.backend.Chat.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

// StartConversation opens a new support conversation. A guest on a device
// where a customer last signed in writes as that customer; other guests are
// keyed by their stored guest session so a returning visitor keeps one
// thread.
func (w *Workspace) StartConversation(ctx context.Context, subject string) (*model.Conversation, error) {
	customerID := w.user.CustomerID
	var guest string
	if w.user.Guest() {
		if w.identity == nil {
			return nil, errors.New("guest sessions require the identity store")
		}
		cached, ok, err := w.cachedCustomer(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			customerID = cached
		} else {
			id, err := w.identity.GuestSessionID(ctx, w.user.scope())
			if err != nil {
				return nil, err
			}
			guest = id
		}
	}

	conv, err := w.backend.Chat.StartConversation(ctx, customerID, guest, subject)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		w.announce(ctx, *conv)
	}
	return conv, nil
}

// cachedCustomer returns the customer remembered on the user's device.
// Tokens without a device claim never share a cached customer.
func (w *Workspace) cachedCustomer(ctx context.Context) (string, bool, error) {
	if w.user.Device == "" {
		return "", false, nil
	}
	return w.identity.CachedUserID(ctx, w.user.Device)
}

// announce tells staff inboxes about a new conversation when the push hub
// accepts publishes.
func (w *Workspace) announce(ctx context.Context, conv model.Conversation) {
	lease, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Warn("failed to announce conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
		return
	}
	defer lease.Release()

	pub, ok := lease.Hub().(push.Publisher)
	if !ok {
		return
	}
	if err := pub.PublishConversation(ctx, conv); err != nil {
		w.logger.Warn("failed to announce conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// WatchConversations streams new-conversation notices to fn until the
// returned stop function is called. The push channel stays leased meanwhile.
func (w *Workspace) WatchConversations(ctx context.Context, fn push.ConversationHandler) (func(), error) {
	lease, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := lease.Hub().SubscribeConversations(ctx, fn)
	if err != nil {
		lease.Release()
		return nil, fmt.Errorf("failed to subscribe to conversations: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			lease.Release()
		})
	}, nil
}

// Session returns the mounted chat session of a conversation, opening it on
// first use. Concurrent first calls share one open, which runs without the
// workspace lock.
func (w *Workspace) Session(ctx context.Context, conversationID string) (*chat.Session, error) {
	if s, err := w.mounted(conversationID); s != nil || err != nil {
		return s, err
	}

	v, err, _ := w.opens.Do(conversationID, func() (any, error) {
		if s, err := w.mounted(conversationID); s != nil || err != nil {
			return s, err
		}
		s, err := chat.Open(ctx, w.pool, w.backend.Chat, conversationID, chat.Participant{
			ID:   w.user.ID,
			Name: w.user.Name,
			Role: w.user.Role,
		}, chat.Options{Typing: w.settings.Typing, Clock: w.settings.Clock}, w.logger)
		if err != nil {
			return nil, err
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			s.Close()
			return nil, ErrWorkspaceClosed
		}
		w.sessions[conversationID] = s
		w.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chat.Session), nil
}

// mounted returns the open session of a conversation, or nil.
func (w *Workspace) mounted(conversationID string) (*chat.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkspaceClosed
	}
	return w.sessions[conversationID], nil
}

// CloseSession unmounts a conversation. It reports whether one was open.
func (w *Workspace) CloseSession(conversationID string) bool {
	w.mu.Lock()
	s, ok := w.sessions[conversationID]
	delete(w.sessions, conversationID)
	w.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Sessions returns the number of mounted chat sessions.
func (w *Workspace) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

// Suggest drafts a reply for a conversation from its current thread.
func (w *Workspace) Suggest(ctx context.Context, conversationID string) (assist.Suggestion, error) {
	if w.suggest == nil {
		return assist.Suggestion{}, ErrSuggestionsDisabled
	}
	s, err := w.Session(ctx, conversationID)
	if err != nil {
		return assist.Suggestion{}, err
	}
	return w.suggest.Suggest(ctx, s.Messages(), w.user.ID)
}

// SuggestStream drafts a reply, passing tokens to fn as they arrive.
func (w *Workspace) SuggestStream(ctx context.Context, conversationID string, fn assist.TokenFunc) (assist.Suggestion, error) {
	if w.suggest == nil {
		return assist.Suggestion{}, ErrSuggestionsDisabled
	}
	s, err := w.Session(ctx, conversationID)
	if err != nil {
		return assist.Suggestion{}, err
	}
	return w.suggest.Stream(ctx, s.Messages(), w.user.ID, fn)
}

// Profile returns a customer's profile, loading it when it is not cached or
// refresh is set. The notifications screen follows the last loaded profile.
// The result is a copy the caller owns.
func (w *Workspace) Profile(ctx context.Context, customerID int64, refresh bool) (model.CustomerProfile, error) {
	w.mu.Lock()
	cached, ok := w.loaded[customerID]
	var out model.CustomerProfile
	if ok {
		out = cloneProfile(*cached)
	}
	w.mu.Unlock()
	if ok && !refresh {
		return out, nil
	}

	p := w.profiles.Load(ctx, customerID)
	kept := cloneProfile(p)

	w.mu.Lock()
	w.loaded[customerID] = &kept
	w.mu.Unlock()

	notifications := slices.Clone(p.Notifications)
	err := w.Notifications.Refresh(ctx, func(context.Context) ([]model.Notification, error) {
		return notifications, nil
	})
	if err != nil && !errors.Is(err, listview.ErrStale) {
		return p, err
	}
	return p, nil
}

// MarkNotificationRead marks a notification read on the backend, in every
// cached profile holding it and on the notifications screen.
func (w *Workspace) MarkNotificationRead(ctx context.Context, id int64) error {
	if err := w.profiles.MarkRead(ctx, nil, id); err != nil {
		return err
	}

	w.mu.Lock()
	for _, p := range w.loaded {
		for i := range p.Notifications {
			if p.Notifications[i].ID == id {
				p.Notifications[i].IsRead = true
			}
		}
		p.UnreadCount = profile.UnreadCount(p.Notifications)
	}
	w.mu.Unlock()

	err := w.Notifications.Patch(id, func(n model.Notification) model.Notification {
		n.IsRead = true
		return n
	})
	if err != nil && !errors.Is(err, listview.ErrNotFound) {
		return err
	}
	return nil
}

// DismissReminder dismisses a reminder on the backend and in every cached
// profile holding it.
func (w *Workspace) DismissReminder(ctx context.Context, id int64) error {
	if err := w.profiles.Dismiss(ctx, nil, id); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.loaded {
		for i := range p.Reminders {
			if p.Reminders[i].ID == id {
				p.Reminders[i].Dismissed = true
			}
		}
	}
	return nil
}

// Close unmounts every chat session. The workspace rejects new sessions
// afterwards.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	sessions := w.sessions
	w.sessions = make(map[string]*chat.Session)
	w.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	w.logger.Debug("workspace closed", zap.Int("sessions", len(sessions)))
}

func (w *Workspace) touch(now time.Time) {
	w.lastSeen.Store(now.UnixNano())
}

func (w *Workspace) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, w.lastSeen.Load()))
}

func cloneProfile(p model.CustomerProfile) model.CustomerProfile {
	p.Vehicles = slices.Clone(p.Vehicles)
	p.Bookings = slices.Clone(p.Bookings)
	p.Reviews = slices.Clone(p.Reviews)
	p.Notifications = slices.Clone(p.Notifications)
	p.Reminders = slices.Clone(p.Reminders)
	p.Errors = maps.Clone(p.Errors)
	return p
}
