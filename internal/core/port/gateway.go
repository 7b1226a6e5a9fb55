package port

import "github.com/bmsc/comms/internal/core/domain"

// Client is one connected end-user session on the real-time gateway.
type Client interface {
	UserID() domain.UserID
	Send(event string, payload any) error
	Close() error
}

// RealTimeGateway delivers server-initiated events (incoming call ring,
// call canceled, chat messages) to connected clients.
type RealTimeGateway interface {
	Register(c Client)
	Unregister(c Client)
	SendToUser(userID domain.UserID, event string, payload any) bool
}
