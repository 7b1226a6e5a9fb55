package service

import (
	"sync"

	"github.com/bmsc/comms/internal/core/port"
)

// Services is the single registry of collaborator handles, constructed once
// at process start and passed by reference to every consumer. Collaborators
// initialize asynchronously relative to the rest of the process, so handles
// may be bound after consumers already hold the registry; accessors report
// ErrNotReady until binding happens and callers recover with RetryPolicy.
type Services struct {
	mu       sync.RWMutex
	signals  port.SignalStore
	media    port.MediaTransport
	contacts port.ContactRepository
	history  port.CallHistoryRepository
}

func NewServices() *Services {
	return &Services{}
}

func (s *Services) BindSignals(store port.SignalStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = store
}

func (s *Services) BindMedia(t port.MediaTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = t
}

func (s *Services) BindContacts(r port.ContactRepository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = r
}

func (s *Services) BindHistory(r port.CallHistoryRepository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = r
}

func (s *Services) Signals() (port.SignalStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signals == nil {
		return nil, ErrNotReady
	}
	return s.signals, nil
}

func (s *Services) Media() (port.MediaTransport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.media == nil {
		return nil, ErrNotReady
	}
	return s.media, nil
}

func (s *Services) Contacts() (port.ContactRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.contacts == nil {
		return nil, ErrNotReady
	}
	return s.contacts, nil
}

func (s *Services) History() (port.CallHistoryRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return nil, ErrNotReady
	}
	return s.history, nil
}

// Ready reports whether every collaborator has been bound.
func (s *Services) Ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signals == nil || s.media == nil || s.contacts == nil || s.history == nil {
		return ErrNotReady
	}
	return nil
}
