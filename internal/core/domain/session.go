package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallState is the explicit lifecycle state of a call session. The state is
// owned by the coordinator, not inferred from whether the signaling record
// happens to exist.
type CallState int

const (
	CallUnstarted CallState = iota
	CallSignaling
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallUnstarted:
		return "unstarted"
	case CallSignaling:
		return "signaling"
	case CallEnded:
		return "ended"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// EndReason records why a session reached CallEnded.
type EndReason string

const (
	EndedLocal    EndReason = "local"    // local party ended the call
	EndedRemote   EndReason = "remote"   // remote party deleted the signaling record
	EndedDetached EndReason = "detached" // owning scope was torn down
	EndedError    EndReason = "error"    // setup failed after the record was published
)

// SignalStatus is the status field carried inside a signaling record.
type SignalStatus string

const (
	SignalCalling  SignalStatus = "calling"
	SignalAccepted SignalStatus = "accepted"
	SignalEnded    SignalStatus = "ended"
)

// CallSignal is the shared signaling record for one call attempt. Both
// parties locate it under the same session key; either may delete it.
type CallSignal struct {
	Caller       UserID       `json:"caller"`
	CallerEmail  string       `json:"caller_email,omitempty"`
	Receiver     UserID       `json:"receiver"`
	ReceiverName string       `json:"receiver_name,omitempty"`
	ChannelName  string       `json:"channel_name"`
	Status       SignalStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SessionKey addresses the signaling record for a caller/callee pair. The
// order convention is fixed by the initiator, so both sides derive the same
// key from the same pair.
func SessionKey(caller, callee UserID) string {
	return fmt.Sprintf("%s_%s", caller, callee)
}

// ReverseSessionKey is the key the other party would use had it initiated.
// Checked before starting a call so the pair never holds two live records.
func ReverseSessionKey(caller, callee UserID) string {
	return SessionKey(callee, caller)
}

const channelPrefix = "bmsc"

// NewChannelName derives a media room identifier for one call attempt. It is
// distinct from the session key and must be unique per attempt, otherwise two
// unrelated calls would land in the same media room. Truncated participant
// ids keep it readable; the random fragment makes repeated attempts for the
// same pair distinct.
func NewChannelName(self, peer UserID) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		channelPrefix, shortID(self), shortID(peer), uuid.New().String()[:8])
}

func shortID(id UserID) string {
	s := string(id)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
