package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetReusesWorkspace(t *testing.T) {
	f := newFixture(t, nil)

	w1 := f.registry.Get(context.Background(), staff)
	w2 := f.registry.Get(context.Background(), staff)
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, f.registry.Len())
}

func TestRegistry_RemembersCustomerPerDevice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.registry.Get(ctx, staff)
	f.registry.Get(ctx, User{ID: "visitor-1", Role: RoleGuest, Device: "dev-guest"})
	f.registry.Get(ctx, User{ID: "user-9", Role: RoleCustomer, CustomerID: "cus-9"})
	for _, scope := range []string{staff.ID, "dev-guest", "user-9"} {
		_, ok, err := f.store.CachedUserID(ctx, scope)
		require.NoError(t, err)
		assert.False(t, ok, scope)
	}

	f.registry.Get(ctx, User{ID: "user-3", Role: RoleCustomer, CustomerID: "cus-3", Device: "dev-1"})
	id, ok, err := f.store.CachedUserID(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cus-3", id)
}

func TestRegistry_SignOut(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	customer := User{ID: "user-3", Role: RoleCustomer, CustomerID: "cus-3", Device: "dev-1"}

	w := f.registry.Get(ctx, customer)
	_, err := w.Session(ctx, "c-1")
	require.NoError(t, err)

	require.NoError(t, f.registry.SignOut(ctx, customer))
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 0, f.pool.Active())
	_, ok, err := f.store.CachedUserID(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = w.Session(ctx, "c-1")
	assert.ErrorIs(t, err, ErrWorkspaceClosed)
	assert.NotSame(t, w, f.registry.Get(ctx, customer))

	assert.NoError(t, f.registry.SignOut(ctx, User{ID: "nobody", Role: RoleStaff}))
}

func TestRegistry_EvictClosesIdleWorkspaces(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.registry.now = func() time.Time { return now }

	idle := f.registry.Get(context.Background(), staff)
	_, err := idle.Session(context.Background(), "c-1")
	require.NoError(t, err)
	require.Equal(t, 1, f.pool.Active())

	now = now.Add(45 * time.Second)
	f.registry.Get(context.Background(), User{ID: "staff-2", Role: RoleStaff})

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, f.registry.Evict())
	assert.Equal(t, 1, f.registry.Len())
	assert.Equal(t, 0, f.pool.Active(), "evicted sessions release the push lease")

	fresh := f.registry.Get(context.Background(), staff)
	assert.NotSame(t, idle, fresh)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.registry.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistry_EvictDoesNotWaitForSessionOpen(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.registry.now = func() time.Time { return now }

	w := f.registry.Get(context.Background(), staff)
	release := f.chat.block()
	opened := make(chan error, 1)
	go func() {
		_, err := w.Session(context.Background(), "c-1")
		opened <- err
	}()
	<-f.chat.waiting

	now = now.Add(2 * time.Minute)
	done := make(chan int, 1)
	go func() {
		done <- f.registry.Evict()
		f.registry.Get(context.Background(), User{ID: "staff-2", Role: RoleStaff})
		done <- w.Sessions()
	}()

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("Evict waited for a session open")
	}
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("workspace lock held during session open")
	}

	release()
	assert.ErrorIs(t, <-opened, ErrWorkspaceClosed)
	assert.Equal(t, 0, f.pool.Active(), "session opened after close is released")
}
