package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type CallType string

const (
	CallTypeVideo CallType = "video"
	CallTypeAudio CallType = "audio"
)

func (t CallType) Valid() bool {
	return t == CallTypeVideo || t == CallTypeAudio
}

// CallOutcome is the terminal status of a finished call, written to the
// call history audit trail once the call leaves the signaling path.
type CallOutcome string

const (
	CallCompleted CallOutcome = "completed"
	CallMissed    CallOutcome = "missed"
	CallDeclined  CallOutcome = "declined"
)

func (o CallOutcome) Valid() bool {
	switch o {
	case CallCompleted, CallMissed, CallDeclined:
		return true
	}
	return false
}

// Participant is the joined identity attached to a call history row for
// display purposes. Empty when the id never matched a contact.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type CallHistoryRecord struct {
	ID         string      `json:"id"`
	CallerID   UserID      `json:"caller_id"`
	ReceiverID UserID      `json:"receiver_id"`
	CallType   CallType    `json:"call_type"`
	Duration   int         `json:"duration"`
	Status     CallOutcome `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`

	Caller   *Participant `json:"caller,omitempty"`
	Receiver *Participant `json:"receiver,omitempty"`
}

func NewCallHistoryRecord(caller, receiver UserID, callType CallType, duration int, status CallOutcome) (*CallHistoryRecord, error) {
	if caller == "" || receiver == "" {
		return nil, errors.New("call history requires both participant ids")
	}
	if !callType.Valid() {
		return nil, errors.New("invalid call type")
	}
	if !status.Valid() {
		return nil, errors.New("invalid call status")
	}
	if duration < 0 {
		return nil, errors.New("duration cannot be negative")
	}
	now := time.Now().UTC()
	rec := &CallHistoryRecord{
		ID:         uuid.New().String(),
		CallerID:   caller,
		ReceiverID: receiver,
		CallType:   callType,
		Duration:   duration,
		Status:     status,
		StartedAt:  now,
	}
	if status == CallCompleted {
		ended := now
		rec.EndedAt = &ended
	}
	return rec, nil
}
