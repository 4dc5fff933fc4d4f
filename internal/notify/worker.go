package notify

import (
	"context"
	"log/slog"
	"strings"

	"vidpress/internal/models"
	"vidpress/internal/storage"
)

// Worker consumes queue events and persists them as user notifications,
// honouring each recipient's notification preferences.
type Worker struct {
	queue  Queue
	store  storage.Repository
	logger *slog.Logger
}

// NewWorker prepares a worker that will persist notification events delivered
// via the queue.
func NewWorker(store storage.Repository, queue Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, store: store, logger: logger}
}

// Run blocks until the context is cancelled, persisting events as they arrive.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil || w.store == nil {
		return
	}
	sub := w.queue.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := w.persist(event); err != nil {
				w.logger.Error("failed to persist notification", "type", event.Type, "user_id", event.UserID, "error", err)
			}
		}
	}
}

func (w *Worker) persist(event Event) error {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" || strings.TrimSpace(event.Message) == "" {
		return nil
	}
	user, ok := w.store.GetUser(userID)
	if !ok {
		return nil
	}
	if !wantsEvent(user.Preferences, event.Type) {
		return nil
	}
	_, err := w.store.CreateNotification(storage.CreateNotificationParams{
		UserID:  userID,
		Type:    string(event.Type),
		Message: event.Message,
	})
	return err
}

// wantsEvent maps an event type to the matching preference toggle. Unknown
// event types are delivered so new producers fail open.
func wantsEvent(prefs models.NotificationPreferences, eventType EventType) bool {
	switch eventType {
	case EventTypeUploadComplete:
		return prefs.UploadComplete
	case EventTypeChannelConnected:
		return prefs.ChannelConnected
	case EventTypeSubscriberMilestone:
		return prefs.SubscriberMilestone
	case EventTypeLikeMilestone:
		return prefs.LikeMilestone
	default:
		return true
	}
}
