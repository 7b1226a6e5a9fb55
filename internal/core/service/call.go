package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
	"github.com/rs/zerolog/log"
)

// ErrCallInProgress is returned when a live signaling record already exists
// for the caller/callee pair, in either key order.
var ErrCallInProgress = errors.New("a call for this pair is already in progress")

const callsPrefix = "calls/"

// teardown on the detached path runs against an already-canceled parent
// context, so it gets its own deadline.
const teardownTimeout = 5 * time.Second

// Coordinator owns the lifecycle of call sessions: it publishes the
// signaling record the other party discovers, watches it for remote
// changes, and guarantees record deletion and watch cancellation on every
// exit path.
type Coordinator struct {
	services *Services
	retry    RetryPolicy
}

func NewCoordinator(services *Services, retry RetryPolicy) *Coordinator {
	return &Coordinator{services: services, retry: retry}
}

// CallOption configures a session before the signaling record is published.
type CallOption func(*CallSession)

// WithCallerEmail sets the caller email carried in the signaling record so
// the callee can render who is ringing.
func WithCallerEmail(email string) CallOption {
	return func(s *CallSession) { s.callerEmail = email }
}

func WithCallType(t domain.CallType) CallOption {
	return func(s *CallSession) { s.callType = t }
}

// WithOnUpdate registers a callback invoked when the remote party rewrites
// the signaling record.
func WithOnUpdate(fn func(domain.CallSignal)) CallOption {
	return func(s *CallSession) { s.onUpdate = fn }
}

// WithOnEnded registers a callback invoked exactly once when the session
// reaches its terminal state.
func WithOnEnded(fn func(domain.EndReason)) CallOption {
	return func(s *CallSession) { s.onEnded = fn }
}

// CallSession is one outgoing call attempt. A session is created by
// StartCall in the signaling state and ends exactly once; re-calling the
// same contact requires a new StartCall with a fresh channel name.
type CallSession struct {
	coord *Coordinator

	key         string
	path        string
	channelName string
	caller      domain.UserID
	callee      domain.UserID
	calleeName  string
	callerEmail string
	callType    domain.CallType
	createdAt   time.Time

	mu     sync.Mutex
	state  domain.CallState
	reason domain.EndReason

	cancelWatch port.CancelFunc
	endOnce     sync.Once
	done        chan struct{}

	onUpdate func(domain.CallSignal)
	onEnded  func(domain.EndReason)
}

// StartCall publishes a signaling record for selfID calling contact and
// begins watching it. The channel name is the media room the caller's UI
// joins once permissions are confirmed; joining is not done here.
//
// Teardown is bound to ctx: canceling it tears the session down the same
// way an explicit End does. If the signaling write never succeeds the call
// does not start and nothing is leaked.
func (c *Coordinator) StartCall(ctx context.Context, selfID domain.UserID, contact *domain.Contact, channelName string, opts ...CallOption) (*CallSession, error) {
	if selfID == "" {
		return nil, errors.New("caller id cannot be empty")
	}
	if contact == nil || contact.UserID == "" {
		return nil, errors.New("contact must have a user id")
	}
	if channelName == "" {
		return nil, errors.New("channel name cannot be empty")
	}

	s := &CallSession{
		coord:       c,
		key:         domain.SessionKey(selfID, contact.UserID),
		channelName: channelName,
		caller:      selfID,
		callee:      contact.UserID,
		calleeName:  contact.Name,
		callType:    domain.CallTypeVideo,
		createdAt:   time.Now().UTC(),
		state:       domain.CallUnstarted,
		done:        make(chan struct{}),
	}
	s.path = callsPrefix + s.key
	for _, opt := range opts {
		opt(s)
	}

	var store port.SignalStore
	err := c.retry.Do(ctx, func() error {
		var err error
		store, err = c.services.Signals()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("signal store: %w", err)
	}

	if err := c.checkNoLiveRecord(ctx, store, selfID, contact.UserID); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(domain.CallSignal{
		Caller:       selfID,
		CallerEmail:  s.callerEmail,
		Receiver:     contact.UserID,
		ReceiverName: contact.Name,
		ChannelName:  channelName,
		Status:       domain.SignalCalling,
		CreatedAt:    s.createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode call signal: %w", err)
	}
	if err := store.Put(ctx, s.path, doc); err != nil {
		return nil, fmt.Errorf("publish call signal: %w", err)
	}
	s.state = domain.CallSignaling

	cancel, err := store.Watch(ctx, s.path, s.handleWatch)
	if err != nil {
		// The record is already visible to the other side; take it back
		// before reporting the failure.
		if derr := store.Delete(context.WithoutCancel(ctx), s.path); derr != nil {
			log.Error().Err(derr).Str("session", s.key).Msg("Failed to remove call signal after watch error")
		}
		return nil, fmt.Errorf("watch call signal: %w", err)
	}
	// A remote hangup can drive teardown on the watch goroutine before this
	// assignment runs. teardown reads cancelWatch under the same lock; if it
	// already ran with a nil handle, the watch is canceled here instead.
	s.mu.Lock()
	s.cancelWatch = cancel
	ended := s.state == domain.CallEnded
	s.mu.Unlock()
	if ended {
		cancel()
	}

	go func() {
		select {
		case <-ctx.Done():
			tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer tcancel()
			s.teardown(tctx, domain.EndedDetached, domain.CallMissed)
		case <-s.done:
		}
	}()

	log.Info().
		Str("session", s.key).
		Str("channel", channelName).
		Str("callee", contact.UserID.String()).
		Msg("Call started")
	return s, nil
}

// IncomingEvent notifies a callee that a call for them appeared or went
// away. Signal is nil when Canceled.
type IncomingEvent struct {
	SessionKey string
	Canceled   bool
	Signal     *domain.CallSignal
}

// WatchIncoming watches the signaling space for calls addressed to userID.
// The record body is gone by the time a deletion arrives, so cancellations
// are matched against the keys this watch previously announced; a call that
// never rang here produces no cancellation either.
func (c *Coordinator) WatchIncoming(ctx context.Context, userID domain.UserID, fn func(IncomingEvent)) (port.CancelFunc, error) {
	store, err := c.services.Signals()
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	rung := make(map[string]struct{})
	return store.WatchPrefix(ctx, callsPrefix, func(ev port.WatchEvent) {
		key := strings.TrimPrefix(ev.Path, callsPrefix)
		switch ev.Op {
		case port.OpPut:
			var sig domain.CallSignal
			if err := json.Unmarshal(ev.Doc, &sig); err != nil {
				log.Warn().Err(err).Str("path", ev.Path).Msg("Malformed call signal")
				return
			}
			if sig.Receiver != userID {
				return
			}
			mu.Lock()
			rung[key] = struct{}{}
			mu.Unlock()
			fn(IncomingEvent{SessionKey: key, Signal: &sig})
		case port.OpDelete:
			mu.Lock()
			_, ok := rung[key]
			delete(rung, key)
			mu.Unlock()
			if ok {
				fn(IncomingEvent{SessionKey: key, Canceled: true})
			}
		}
	})
}

// checkNoLiveRecord enforces the one-live-record-per-pair invariant: a new
// call is refused while a signaling record exists for the same pair under
// either key order.
func (c *Coordinator) checkNoLiveRecord(ctx context.Context, store port.SignalStore, caller, callee domain.UserID) error {
	for _, key := range []string{domain.SessionKey(caller, callee), domain.ReverseSessionKey(caller, callee)} {
		_, err := store.Get(ctx, callsPrefix+key)
		switch {
		case err == nil:
			return ErrCallInProgress
		case errors.Is(err, port.ErrNoDocument):
		default:
			return fmt.Errorf("check live record %s: %w", key, err)
		}
	}
	return nil
}

func (s *CallSession) handleWatch(ev port.WatchEvent) {
	switch ev.Op {
	case port.OpDelete:
		// Remote party tore the record down; benign race with our own
		// teardown, endOnce keeps it single-shot.
		tctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		s.teardown(tctx, domain.EndedRemote, domain.CallCompleted)
	case port.OpPut:
		var sig domain.CallSignal
		if err := json.Unmarshal(ev.Doc, &sig); err != nil {
			log.Warn().Err(err).Str("session", s.key).Msg("Malformed call signal update")
			return
		}
		if s.onUpdate != nil {
			s.onUpdate(sig)
		}
	}
}

// SessionKey returns the signaling record key for this session.
func (s *CallSession) SessionKey() string { return s.key }

// ChannelName returns the media room identifier the caller's UI joins.
func (s *CallSession) ChannelName() string { return s.channelName }

// Done is closed once the session has fully ended and cleanup ran.
func (s *CallSession) Done() <-chan struct{} { return s.done }

func (s *CallSession) State() (domain.CallState, domain.EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// End hangs up locally. Idempotent: a second End is a no-op.
func (s *CallSession) End(ctx context.Context) error {
	s.teardown(ctx, domain.EndedLocal, domain.CallCompleted)
	return nil
}

// EndWithOutcome hangs up and records the given outcome instead of the
// default "completed". The coordinator does not infer the outcome itself;
// whether an unanswered call was missed or declined is the caller's call.
func (s *CallSession) EndWithOutcome(ctx context.Context, outcome domain.CallOutcome) error {
	if !outcome.Valid() {
		return errors.New("invalid call outcome")
	}
	s.teardown(ctx, domain.EndedLocal, outcome)
	return nil
}

// teardown runs the cleanup guarantee: cancel the watch, delete the
// signaling record, leave the media room, write the history row. Each step
// is attempted even when an earlier one fails; failures are logged, never
// propagated. A leaked remnant record beats a stuck call.
func (s *CallSession) teardown(ctx context.Context, reason domain.EndReason, outcome domain.CallOutcome) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.state = domain.CallEnded
		s.reason = reason
		cancelWatch := s.cancelWatch
		s.mu.Unlock()

		if cancelWatch != nil {
			cancelWatch()
		}

		if store, err := s.coord.services.Signals(); err == nil {
			if err := store.Delete(ctx, s.path); err != nil {
				log.Error().Err(err).Str("session", s.key).Msg("Failed to delete call signal")
			}
		} else {
			log.Error().Err(err).Str("session", s.key).Msg("Signal store unavailable during teardown")
		}

		if media, err := s.coord.services.Media(); err == nil {
			if err := media.Leave(ctx); err != nil {
				log.Error().Err(err).Str("session", s.key).Msg("Failed to leave media channel")
			}
		}

		s.recordHistory(ctx, outcome)

		close(s.done)
		log.Info().Str("session", s.key).Str("reason", string(reason)).Msg("Call ended")

		if s.onEnded != nil {
			s.onEnded(reason)
		}
	})
}

func (s *CallSession) recordHistory(ctx context.Context, outcome domain.CallOutcome) {
	history, err := s.coord.services.History()
	if err != nil {
		log.Error().Err(err).Str("session", s.key).Msg("Call history store unavailable")
		return
	}

	duration := 0
	if outcome == domain.CallCompleted {
		duration = int(time.Since(s.createdAt).Seconds())
	}
	rec, err := domain.NewCallHistoryRecord(s.caller, s.callee, s.callType, duration, outcome)
	if err != nil {
		log.Error().Err(err).Str("session", s.key).Msg("Invalid call history record")
		return
	}
	rec.StartedAt = s.createdAt
	if err := history.Insert(ctx, rec); err != nil {
		log.Error().Err(err).Str("session", s.key).Msg("Failed to record call history")
	}
}
