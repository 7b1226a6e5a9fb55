package domain

import (
	"github.com/google/uuid"
)

// UserID is the authenticated identity of a user as issued by the auth
// provider. Opaque string, not necessarily a UUID.
type UserID string

func (id UserID) String() string {
	return string(id)
}

type ContactID string

func NewContactID() ContactID {
	return ContactID(uuid.New().String())
}

func (id ContactID) String() string {
	return string(id)
}

type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (id MessageID) String() string {
	return string(id)
}
