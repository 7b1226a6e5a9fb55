package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmsc/comms/internal/core/domain"
)

// ContactService manages the contact list in the relational store.
type ContactService struct {
	services *Services
	retry    RetryPolicy
}

func NewContactService(services *Services, retry RetryPolicy) *ContactService {
	return &ContactService{services: services, retry: retry}
}

func (s *ContactService) Add(ctx context.Context, userID domain.UserID, name, email string) (*domain.Contact, error) {
	contact, err := domain.NewContact(userID, name, email)
	if err != nil {
		return nil, err
	}
	err = s.retry.Do(ctx, func() error {
		repo, err := s.services.Contacts()
		if err != nil {
			return err
		}
		return repo.Insert(ctx, contact)
	})
	if err != nil {
		return nil, fmt.Errorf("add contact: %w", err)
	}
	return contact, nil
}

// List returns everyone except the requesting user, ordered by name.
func (s *ContactService) List(ctx context.Context, selfID domain.UserID) ([]*domain.Contact, error) {
	if selfID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	var contacts []*domain.Contact
	err := s.retry.Do(ctx, func() error {
		repo, err := s.services.Contacts()
		if err != nil {
			return err
		}
		contacts, err = repo.List(ctx, selfID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (s *ContactService) SetFavorite(ctx context.Context, id domain.ContactID, favorite bool) error {
	repo, err := s.services.Contacts()
	if err != nil {
		return err
	}
	return repo.SetFavorite(ctx, id, favorite)
}

// UpdateStatus sets the user's presence and refreshes last_seen.
func (s *ContactService) UpdateStatus(ctx context.Context, userID domain.UserID, status domain.PresenceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid presence status %q", status)
	}
	repo, err := s.services.Contacts()
	if err != nil {
		return err
	}
	return repo.UpdateStatus(ctx, userID, status)
}
