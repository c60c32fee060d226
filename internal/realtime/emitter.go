package realtime

import (
	"time"

	"github.com/hrpulse/hr-notify/internal/domain"
)

// EventNotificationNew is the event name clients subscribe to.
const EventNotificationNew = "notification:new"

// UserRoom returns the private room for one user's connections.
func UserRoom(userID string) string { return "user:" + userID }

// RoleRoom returns the broadcast room joined by every connection of a role.
func RoleRoom(role domain.Role) string { return "role:" + string(role) }

// Event is the realtime payload pushed to clients.
type Event struct {
	ID             string                  `json:"id"`
	Type           domain.NotificationType `json:"type"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	Payload        domain.Payload          `json:"payload"`
	NotificationID string                  `json:"notificationId"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// Emitter abstracts the fan-out transport. Delivery is fire-and-forget and
// at-most-once: no persistence, no acknowledgment, no cross-user ordering.
// The worker injects an Emitter so tests can use a fake instead of real
// websocket connections.
type Emitter interface {
	EmitToUser(userID, event string, data any) error
	EmitToRoom(room, event string, data any) error
}
