package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/clock"
	"github.com/halodesk/support-platform/internal/model"
	"github.com/halodesk/support-platform/internal/realtime"
	"github.com/halodesk/support-platform/internal/store"
	"github.com/halodesk/support-platform/pkg/logger"
	"github.com/halodesk/support-platform/pkg/metrics"
)

// Notifier creates notification records and fans them out to each recipient's
// live sessions. Read state is per recipient.
type Notifier struct {
	notifications store.NotificationRepository
	users         store.UserRepository
	fanout        realtime.Fanout
	clock         clock.Clock
	logger        *logger.Logger
}

// NewNotifier creates a notification service.
func NewNotifier(
	notifications store.NotificationRepository,
	users store.UserRepository,
	fanout realtime.Fanout,
	clk clock.Clock,
	log *logger.Logger,
) *Notifier {
	return &Notifier{
		notifications: notifications,
		users:         users,
		fanout:        fanout,
		clock:         clk,
		logger:        log,
	}
}

// Notify persists one notification for the given recipients and pushes it to
// each of them. Persistence failure is returned; push failures are logged.
func (n *Notifier) Notify(
	ctx context.Context,
	typ model.NotificationType,
	title, body string,
	conversationID *int64,
	recipientIDs []int64,
) (*model.Notification, error) {
	notif := &model.Notification{
		ID:             uuid.New().String(),
		Type:           typ,
		Title:          title,
		Body:           body,
		ConversationID: conversationID,
		CreatedAt:      n.clock.Now(),
	}

	if err := n.notifications.Create(ctx, notif, recipientIDs); err != nil {
		return nil, err
	}
	metrics.NotificationsTotal.WithLabelValues(string(typ)).Inc()

	ev := realtime.Event{Type: realtime.EventNotificationCreated, Payload: notif}
	if conversationID != nil {
		ev.ConversationID = *conversationID
	}
	for _, uid := range recipientIDs {
		if err := n.fanout.PushToUser(ctx, uid, ev); err != nil {
			n.logger.Warn("notification fanout failed",
				zap.Int64("user_id", uid), zap.String("notification_id", notif.ID), zap.Error(err))
		}
	}
	return notif, nil
}

// NotifyAdmins delivers a notification to every admin-role user.
func (n *Notifier) NotifyAdmins(
	ctx context.Context,
	typ model.NotificationType,
	title, body string,
	conversationID *int64,
) (*model.Notification, error) {
	admins, err := n.users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(admins))
	for i, u := range admins {
		ids[i] = u.ID
	}
	return n.Notify(ctx, typ, title, body, conversationID, ids)
}

// MarkRead stamps a recipient's read marker. Re-reading keeps the original
// timestamp.
func (n *Notifier) MarkRead(ctx context.Context, notificationID string, userID int64) error {
	return n.notifications.MarkRead(ctx, notificationID, userID, n.clock.Now())
}
