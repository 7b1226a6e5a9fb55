package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmsc/comms/internal/core/port"
)

func TestStore_PutGetDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "calls/a_b", []byte(`{"status":"calling"}`)))

	doc, err := s.Get(ctx, "calls/a_b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"calling"}`, string(doc))

	require.NoError(t, s.Delete(ctx, "calls/a_b"))
	_, err = s.Get(ctx, "calls/a_b")
	assert.ErrorIs(t, err, port.ErrNoDocument)
}

func TestStore_DeleteAbsentIsSuccess(t *testing.T) {
	s := NewStore()
	assert.NoError(t, s.Delete(context.Background(), "calls/never_existed"))
	// Twice in a row as well.
	assert.NoError(t, s.Delete(context.Background(), "calls/never_existed"))
}

func TestStore_WatchDeliversPutAndDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	events := make(chan port.WatchEvent, 8)
	cancel, err := s.Watch(ctx, "calls/a_b", func(ev port.WatchEvent) { events <- ev })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Put(ctx, "calls/a_b", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, "calls/other", []byte(`{}`))) // not watched
	require.NoError(t, s.Delete(ctx, "calls/a_b"))

	ev := waitEvent(t, events)
	assert.Equal(t, port.OpPut, ev.Op)
	ev = waitEvent(t, events)
	assert.Equal(t, port.OpDelete, ev.Op)
	assert.Equal(t, "calls/a_b", ev.Path)
}

func TestStore_WatchPrefix(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	events := make(chan port.WatchEvent, 8)
	cancel, err := s.WatchPrefix(ctx, "chats/a_b/messages/", func(ev port.WatchEvent) { events <- ev })
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Put(ctx, "chats/a_b/messages/m1", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, "chats/x_y/messages/m2", []byte(`{}`)))

	ev := waitEvent(t, events)
	assert.Equal(t, "chats/a_b/messages/m1", ev.Path)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_CancelStopsDelivery(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	events := make(chan port.WatchEvent, 8)
	cancel, err := s.Watch(ctx, "calls/a_b", func(ev port.WatchEvent) { events <- ev })
	require.NoError(t, err)

	cancel()
	cancel() // idempotent

	require.NoError(t, s.Put(ctx, "calls/a_b", []byte(`{}`)))
	select {
	case <-events:
		t.Fatal("event delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_ContextCancelStopsDelivery(t *testing.T) {
	s := NewStore()
	ctx, cancelCtx := context.WithCancel(context.Background())

	events := make(chan port.WatchEvent, 8)
	_, err := s.Watch(ctx, "calls/a_b", func(ev port.WatchEvent) { events <- ev })
	require.NoError(t, err)

	cancelCtx()
	// Give the watch goroutine a moment to observe the cancellation.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.watchers) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Put(context.Background(), "calls/a_b", []byte(`{}`)))
	select {
	case <-events:
		t.Fatal("event delivered after context cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "chats/a_b/messages/m1", []byte(`{"n":1}`)))
	require.NoError(t, s.Put(ctx, "chats/a_b/messages/m2", []byte(`{"n":2}`)))
	require.NoError(t, s.Put(ctx, "calls/a_b", []byte(`{}`)))

	docs, err := s.List(ctx, "chats/a_b/messages/")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func waitEvent(t *testing.T, ch <-chan port.WatchEvent) port.WatchEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
		return port.WatchEvent{}
	}
}
