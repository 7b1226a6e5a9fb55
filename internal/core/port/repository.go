package port

import (
	"context"
	"errors"

	"github.com/bmsc/comms/internal/core/domain"
)

var ErrNotFound = errors.New("record not found")

type ContactRepository interface {
	Insert(ctx context.Context, c *domain.Contact) error
	// List returns every contact except the requesting user's own row,
	// ordered by name.
	List(ctx context.Context, exclude domain.UserID) ([]*domain.Contact, error)
	GetByUserID(ctx context.Context, userID domain.UserID) (*domain.Contact, error)
	SetFavorite(ctx context.Context, id domain.ContactID, favorite bool) error
	UpdateStatus(ctx context.Context, userID domain.UserID, status domain.PresenceStatus) error
}

type CallHistoryRepository interface {
	Insert(ctx context.Context, rec *domain.CallHistoryRecord) error
	// ListByUser returns calls where the user was either party, newest
	// first, with caller/receiver identities joined in.
	ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.CallHistoryRecord, error)
}
