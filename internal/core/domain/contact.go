package domain

import (
	"errors"
	"time"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusBusy    PresenceStatus = "busy"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy:
		return true
	}
	return false
}

type Contact struct {
	ID         ContactID      `json:"id"`
	UserID     UserID         `json:"user_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Phone      string         `json:"phone,omitempty"`
	AvatarURL  string         `json:"avatar_url,omitempty"`
	Status     PresenceStatus `json:"status"`
	LastSeen   time.Time      `json:"last_seen"`
	IsFavorite bool           `json:"is_favorite"`
	CreatedAt  time.Time      `json:"created_at"`
}

func NewContact(userID UserID, name, email string) (*Contact, error) {
	if userID == "" {
		return nil, errors.New("contact user id cannot be empty")
	}
	if name == "" {
		return nil, errors.New("contact name cannot be empty")
	}
	if email == "" {
		return nil, errors.New("contact email cannot be empty")
	}
	now := time.Now().UTC()
	return &Contact{
		ID:        NewContactID(),
		UserID:    userID,
		Name:      name,
		Email:     email,
		Status:    StatusOffline,
		LastSeen:  now,
		CreatedAt: now,
	}, nil
}
