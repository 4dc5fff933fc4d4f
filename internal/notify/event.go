package notify

import "time"

// EventType enumerates the notification events flowing from the API surface to
// the persistence worker.
type EventType string

const (
	// EventTypeUploadComplete fires after a video is published to YouTube.
	EventTypeUploadComplete EventType = "upload_complete"
	// EventTypeChannelConnected fires when a YouTube account link completes.
	EventTypeChannelConnected EventType = "channel_connected"
	// EventTypeSubscriberMilestone fires when a channel crosses the user's
	// configured subscriber threshold.
	EventTypeSubscriberMilestone EventType = "subscriber_milestone"
	// EventTypeLikeMilestone fires when a published video crosses the user's
	// configured like threshold.
	EventTypeLikeMilestone EventType = "like_milestone"
)

// Event is the wire representation forwarded to the persistence queue.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	Message    string    `json:"message"`
	VideoID    string    `json:"videoId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
