// Package loopback is an in-process MediaTransport. It models room
// membership and publish/subscribe events between participants of the same
// channel; actual media never flows. It stands in for the hosted vendor
// service in development and tests.
package loopback

import (
	"context"
	"errors"
	"sync"

	"github.com/bmsc/comms/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Engine tracks channel occupancy shared by every Transport it creates.
type Engine struct {
	mu       sync.Mutex
	channels map[string]map[string]*Transport // channel -> uid -> member
}

func NewEngine() *Engine {
	return &Engine{channels: make(map[string]map[string]*Transport)}
}

// NewTransport returns one participant's handle, not yet joined anywhere.
func (e *Engine) NewTransport() *Transport {
	return &Transport{engine: e}
}

type Transport struct {
	engine *Engine

	mu      sync.Mutex
	channel string
	uid     string
	onEvent func(port.MediaEvent)
}

func (t *Transport) OnEvent(fn func(port.MediaEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

func (t *Transport) Join(ctx context.Context, channel, uid, token string) error {
	if channel == "" || uid == "" {
		return errors.New("channel and uid are required")
	}

	t.mu.Lock()
	if t.channel != "" {
		t.mu.Unlock()
		return errors.New("already joined a channel")
	}
	t.channel = channel
	t.uid = uid
	t.mu.Unlock()

	e := t.engine
	e.mu.Lock()
	if e.channels[channel] == nil {
		e.channels[channel] = make(map[string]*Transport)
	}
	e.channels[channel][uid] = t
	e.mu.Unlock()

	log.Debug().Str("channel", channel).Str("uid", uid).Msg("Joined loopback channel")
	return nil
}

// Publish announces tracks to everyone else in the channel.
func (t *Transport) Publish(ctx context.Context, kinds ...port.MediaKind) error {
	channel, uid := t.membership()
	if channel == "" {
		return errors.New("not joined")
	}
	for _, kind := range kinds {
		t.engine.emit(channel, uid, port.MediaEvent{
			Type: port.UserPublished, UID: uid, Kind: kind, Channel: channel,
		})
	}
	return nil
}

// Subscribe is a no-op beyond membership validation: in the loopback there
// is nothing to pull.
func (t *Transport) Subscribe(ctx context.Context, uid string, kind port.MediaKind) error {
	if channel, _ := t.membership(); channel == "" {
		return errors.New("not joined")
	}
	return nil
}

// Leave exits the channel and notifies the remaining participants. Leaving
// while not joined is a no-op, matching the idempotent teardown contract.
func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	channel, uid := t.channel, t.uid
	t.channel, t.uid = "", ""
	t.mu.Unlock()
	if channel == "" {
		return nil
	}

	e := t.engine
	e.mu.Lock()
	if members, ok := e.channels[channel]; ok {
		delete(members, uid)
		if len(members) == 0 {
			delete(e.channels, channel)
		}
	}
	e.mu.Unlock()

	e.emit(channel, uid, port.MediaEvent{Type: port.UserLeft, UID: uid, Channel: channel})
	log.Debug().Str("channel", channel).Str("uid", uid).Msg("Left loopback channel")
	return nil
}

func (t *Transport) membership() (channel, uid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel, t.uid
}

// emit delivers an event to every channel member except the originator.
func (e *Engine) emit(channel, origin string, ev port.MediaEvent) {
	e.mu.Lock()
	var targets []*Transport
	for uid, member := range e.channels[channel] {
		if uid != origin {
			targets = append(targets, member)
		}
	}
	e.mu.Unlock()

	for _, member := range targets {
		member.mu.Lock()
		fn := member.onEvent
		member.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	}
}

var _ port.MediaTransport = (*Transport)(nil)
