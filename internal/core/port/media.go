package port

import "context"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

type MediaEventType string

const (
	UserPublished   MediaEventType = "user-published"
	UserUnpublished MediaEventType = "user-unpublished"
	UserLeft        MediaEventType = "user-left"
)

type MediaEvent struct {
	Type    MediaEventType
	UID     string
	Kind    MediaKind
	Channel string
}

// MediaTransport is the hosted real-time media service. All media work
// (codecs, routing, NAT traversal) happens inside the vendor's
// infrastructure; this port only models room membership and track fan-out
// as seen by one participant.
type MediaTransport interface {
	Join(ctx context.Context, channel, uid, token string) error
	Publish(ctx context.Context, kinds ...MediaKind) error
	Subscribe(ctx context.Context, uid string, kind MediaKind) error
	Leave(ctx context.Context) error
	// OnEvent registers a callback for remote participant events. Must be
	// called before Join to avoid missing early events.
	OnEvent(fn func(MediaEvent))
}
