// Package memory is an in-process SignalStore for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/bmsc/comms/internal/core/port"
	"github.com/rs/zerolog/log"
)

const watchBuffer = 64

type watcher struct {
	path   string
	prefix bool
	fn     port.WatchFunc

	events chan port.WatchEvent
	quit   chan struct{}
	once   sync.Once
}

func (w *watcher) matches(path string) bool {
	if w.prefix {
		return strings.HasPrefix(path, w.path)
	}
	return path == w.path
}

// run delivers events on the watcher's own goroutine, so callbacks may call
// back into the store (a delete observed by one side triggers that side's
// own cleanup delete) without deadlocking.
func (w *watcher) run() {
	for {
		select {
		case <-w.quit:
			return
		case ev := <-w.events:
			select {
			case <-w.quit:
				return
			default:
			}
			w.fn(ev)
		}
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.quit) })
}

// Store keeps documents in a map and fans change events out to watchers,
// one delivery goroutine per watch registration.
type Store struct {
	mu       sync.Mutex
	docs     map[string][]byte
	watchers map[int64]*watcher
	nextID   int64
}

func NewStore() *Store {
	return &Store{
		docs:     make(map[string][]byte),
		watchers: make(map[int64]*watcher),
	}
}

func (s *Store) Put(ctx context.Context, path string, doc []byte) error {
	cp := make([]byte, len(doc))
	copy(cp, doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = cp
	s.notify(port.WatchEvent{Path: path, Op: port.OpPut, Doc: cp})
	return nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, port.ErrNoDocument
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

// Delete removes the document if present. Absent is a success.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notify(port.WatchEvent{Path: path, Op: port.OpDelete})
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for path, doc := range s.docs {
		if strings.HasPrefix(path, prefix) {
			cp := make([]byte, len(doc))
			copy(cp, doc)
			out[path] = cp
		}
	}
	return out, nil
}

func (s *Store) Watch(ctx context.Context, path string, fn port.WatchFunc) (port.CancelFunc, error) {
	return s.register(ctx, &watcher{path: path, fn: fn})
}

func (s *Store) WatchPrefix(ctx context.Context, prefix string, fn port.WatchFunc) (port.CancelFunc, error) {
	return s.register(ctx, &watcher{path: prefix, prefix: true, fn: fn})
}

func (s *Store) register(ctx context.Context, w *watcher) (port.CancelFunc, error) {
	w.events = make(chan port.WatchEvent, watchBuffer)
	w.quit = make(chan struct{})

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	go w.run()

	cancel := func() {
		w.stop()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-w.quit:
		}
	}()
	return cancel, nil
}

// notify runs under s.mu; watchers consume on their own goroutines.
func (s *Store) notify(ev port.WatchEvent) {
	for _, w := range s.watchers {
		if !w.matches(ev.Path) {
			continue
		}
		select {
		case w.events <- ev:
		default:
			log.Warn().Str("path", ev.Path).Msg("Watch buffer full, dropping event")
		}
	}
}

var _ port.SignalStore = (*Store)(nil)
