package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmsc/comms/internal/adapter/driven/media/loopback"
	signalmem "github.com/bmsc/comms/internal/adapter/driven/signal/memory"
	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
)

type fakeHistory struct {
	mu   sync.Mutex
	recs []*domain.CallHistoryRecord
}

func (f *fakeHistory) Insert(ctx context.Context, rec *domain.CallHistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeHistory) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.CallHistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.CallHistoryRecord(nil), f.recs...), nil
}

func (f *fakeHistory) records() []*domain.CallHistoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.CallHistoryRecord(nil), f.recs...)
}

type coordFixture struct {
	coord   *Coordinator
	store   *signalmem.Store
	history *fakeHistory
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	store := signalmem.NewStore()
	history := &fakeHistory{}

	services := NewServices()
	services.BindSignals(store)
	services.BindHistory(history)
	services.BindMedia(loopback.NewEngine().NewTransport())

	retry := RetryPolicy{MaxAttempts: 2, Step: 5 * time.Millisecond}
	return &coordFixture{
		coord:   NewCoordinator(services, retry),
		store:   store,
		history: history,
	}
}

func bobContact() *domain.Contact {
	return &domain.Contact{UserID: "u-bob", Name: "Bob", Email: "bob@example.com"}
}

func TestStartCall_PublishesSignalingRecord(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	channel := domain.NewChannelName("u-alice", "u-bob")
	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), channel,
		WithCallerEmail("alice@example.com"))
	require.NoError(t, err)
	defer session.End(ctx)

	state, _ := session.State()
	assert.Equal(t, domain.CallSignaling, state)
	assert.Equal(t, channel, session.ChannelName())

	doc, err := f.store.Get(ctx, "calls/u-alice_u-bob")
	require.NoError(t, err)
	var sig domain.CallSignal
	require.NoError(t, json.Unmarshal(doc, &sig))
	assert.Equal(t, domain.UserID("u-alice"), sig.Caller)
	assert.Equal(t, domain.UserID("u-bob"), sig.Receiver)
	assert.Equal(t, "alice@example.com", sig.CallerEmail)
	assert.Equal(t, channel, sig.ChannelName)
	assert.Equal(t, domain.SignalCalling, sig.Status)
}

func TestStartCall_Validation(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	_, err := f.coord.StartCall(ctx, "", bobContact(), "ch")
	assert.Error(t, err)

	_, err = f.coord.StartCall(ctx, "u-alice", &domain.Contact{Name: "nobody"}, "ch")
	assert.Error(t, err)

	_, err = f.coord.StartCall(ctx, "u-alice", bobContact(), "")
	assert.Error(t, err)
}

func TestStartCall_RefusesSecondCallForPair(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)
	defer session.End(ctx)

	_, err = f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	assert.ErrorIs(t, err, ErrCallInProgress)

	// Same pair from the other side is refused too.
	alice := &domain.Contact{UserID: "u-alice", Name: "Alice"}
	_, err = f.coord.StartCall(ctx, "u-bob", alice, domain.NewChannelName("u-bob", "u-alice"))
	assert.ErrorIs(t, err, ErrCallInProgress)
}

func TestEnd_IsIdempotent(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)

	require.NoError(t, session.End(ctx))
	require.NoError(t, session.End(ctx))

	state, reason := session.State()
	assert.Equal(t, domain.CallEnded, state)
	assert.Equal(t, domain.EndedLocal, reason)

	_, err = f.store.Get(ctx, "calls/u-alice_u-bob")
	assert.ErrorIs(t, err, port.ErrNoDocument)

	// First End recorded history, the second did not.
	recs := f.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallCompleted, recs[0].Status)
}

func TestEnd_WithOutcome(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)

	require.NoError(t, session.EndWithOutcome(ctx, domain.CallDeclined))
	recs := f.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallDeclined, recs[0].Status)
	assert.Zero(t, recs[0].Duration)

	assert.Error(t, session.EndWithOutcome(ctx, "bogus"))
}

func TestRemoteDelete_EndsSession(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	ended := make(chan domain.EndReason, 1)
	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"),
		WithOnEnded(func(r domain.EndReason) { ended <- r }))
	require.NoError(t, err)

	// The callee hangs up by deleting the shared record.
	require.NoError(t, f.store.Delete(ctx, "calls/u-alice_u-bob"))

	select {
	case reason := <-ended:
		assert.Equal(t, domain.EndedRemote, reason)
	case <-time.After(time.Second):
		t.Fatal("session did not observe the remote hangup")
	}

	state, _ := session.State()
	assert.Equal(t, domain.CallEnded, state)
	require.Len(t, f.history.records(), 1)
}

func TestContextCancel_TearsSessionDown(t *testing.T) {
	f := newCoordFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)

	cancel()

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not tear down on context cancellation")
	}

	state, reason := session.State()
	assert.Equal(t, domain.CallEnded, state)
	assert.Equal(t, domain.EndedDetached, reason)

	_, err = f.store.Get(context.Background(), "calls/u-alice_u-bob")
	assert.ErrorIs(t, err, port.ErrNoDocument)

	recs := f.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CallMissed, recs[0].Status)
}

func TestStartCall_RemoteUpdateDelivered(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	updates := make(chan domain.CallSignal, 1)
	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"),
		WithOnUpdate(func(sig domain.CallSignal) { updates <- sig }))
	require.NoError(t, err)
	defer session.End(ctx)

	// Callee accepts by rewriting the record.
	doc, err := f.store.Get(ctx, "calls/u-alice_u-bob")
	require.NoError(t, err)
	var sig domain.CallSignal
	require.NoError(t, json.Unmarshal(doc, &sig))
	sig.Status = domain.SignalAccepted
	doc, _ = json.Marshal(sig)
	require.NoError(t, f.store.Put(ctx, "calls/u-alice_u-bob", doc))

	select {
	case got := <-updates:
		assert.Equal(t, domain.SignalAccepted, got.Status)
	case <-time.After(time.Second):
		t.Fatal("remote update never delivered")
	}
}

func TestStartCall_FailsWhenStoreNeverReady(t *testing.T) {
	services := NewServices()
	services.BindHistory(&fakeHistory{})
	coord := NewCoordinator(services, RetryPolicy{MaxAttempts: 3, Step: time.Millisecond})

	_, err := coord.StartCall(context.Background(), "u-alice", bobContact(), "ch")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStartCall_SucceedsWhenStoreBecomesReady(t *testing.T) {
	services := NewServices()
	services.BindHistory(&fakeHistory{})
	services.BindMedia(loopback.NewEngine().NewTransport())
	coord := NewCoordinator(services, RetryPolicy{MaxAttempts: 5, Step: 10 * time.Millisecond})

	go func() {
		time.Sleep(15 * time.Millisecond)
		services.BindSignals(signalmem.NewStore())
	}()

	session, err := coord.StartCall(context.Background(), "u-alice", bobContact(),
		domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)
	session.End(context.Background())
}

func TestWatchIncoming_NotifiesCallee(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	events := make(chan IncomingEvent, 4)
	cancel, err := f.coord.WatchIncoming(ctx, "u-bob", func(ev IncomingEvent) { events <- ev })
	require.NoError(t, err)
	defer cancel()

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.False(t, ev.Canceled)
		require.NotNil(t, ev.Signal)
		assert.Equal(t, domain.UserID("u-alice"), ev.Signal.Caller)
		assert.Equal(t, session.ChannelName(), ev.Signal.ChannelName)
	case <-time.After(time.Second):
		t.Fatal("callee never saw the incoming call")
	}

	require.NoError(t, session.End(ctx))

	select {
	case ev := <-events:
		assert.True(t, ev.Canceled)
		assert.Equal(t, "u-alice_u-bob", ev.SessionKey)
	case <-time.After(time.Second):
		t.Fatal("callee never saw the cancellation")
	}
}

func TestWatchIncoming_IgnoresOtherUsersCalls(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	events := make(chan IncomingEvent, 4)
	cancel, err := f.coord.WatchIncoming(ctx, "u-carol", func(ev IncomingEvent) { events <- ev })
	require.NoError(t, err)
	defer cancel()

	session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"))
	require.NoError(t, err)
	defer session.End(ctx)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for carol: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartCall_RemoteHangupDuringSetup(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()
	const path = "calls/u-alice_u-bob"

	// The callee hangs up the instant the record lands, racing the caller's
	// own watch registration.
	for i := 0; i < 20; i++ {
		remote, err := f.store.Watch(ctx, path, func(ev port.WatchEvent) {
			if ev.Op == port.OpPut {
				f.store.Delete(ctx, path)
			}
		})
		require.NoError(t, err)

		updates := make(chan domain.CallSignal, 4)
		session, err := f.coord.StartCall(ctx, "u-alice", bobContact(), domain.NewChannelName("u-alice", "u-bob"),
			WithOnUpdate(func(sig domain.CallSignal) { updates <- sig }))
		require.NoError(t, err)

		select {
		case <-session.Done():
		case <-time.After(200 * time.Millisecond):
			// The hangup landed before this side's watch registered.
			require.NoError(t, session.End(ctx))
			<-session.Done()
		}
		remote()

		// Whichever goroutine finished the teardown, the session's watch
		// must be gone: a rewritten record never reaches an ended session.
		require.NoError(t, f.store.Put(ctx, path, []byte(`{"status":"calling"}`)))
		select {
		case sig := <-updates:
			t.Fatalf("update delivered after end: %+v", sig)
		case <-time.After(20 * time.Millisecond):
		}
		require.NoError(t, f.store.Delete(ctx, path))
	}
}

func TestWatchIncoming_UnderscoreUserIDs(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	// "bob" must not be rung, or see a cancellation, for a call addressed
	// to "e_bob" even though the session key "u-alice_e_bob" ends in "_bob".
	events := make(chan IncomingEvent, 4)
	cancel, err := f.coord.WatchIncoming(ctx, "bob", func(ev IncomingEvent) { events <- ev })
	require.NoError(t, err)
	defer cancel()

	contact := &domain.Contact{UserID: "e_bob", Name: "Ebob"}
	session, err := f.coord.StartCall(ctx, "u-alice", contact, domain.NewChannelName("u-alice", "e_bob"))
	require.NoError(t, err)
	require.NoError(t, session.End(ctx))
	<-session.Done()

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for bob: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
