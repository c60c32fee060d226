package domain

import (
	"fmt"
	"time"
)

// Role identifies the access level of a user in the directory.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEmployee:
		return true
	}
	return false
}

// NotificationType is the enumerated kind of a notification. Each type has a
// template registered in the store; dispatching an unregistered type fails.
type NotificationType string

const (
	TypeAnnouncement     NotificationType = "ANNOUNCEMENT"
	TypeProfileUpdated   NotificationType = "PROFILE_UPDATED"
	TypeNewEmployeeAdded NotificationType = "NEW_EMPLOYEE_ADDED"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeAnnouncement, TypeProfileUpdated, TypeNewEmployeeAdded:
		return true
	}
	return false
}

// Channel is the delivery channel. In-app is the only variant today; the
// column exists so additional channels can be added without a schema change.
type Channel string

const ChannelInApp Channel = "IN_APP"

// DeliveryStatus tracks the per-recipient read state.
type DeliveryStatus string

const (
	DeliveryUnread DeliveryStatus = "UNREAD"
	DeliveryRead   DeliveryStatus = "READ"
)

// JobStatus tracks the lifecycle of a queue job. Transitions are monotone:
// PENDING → PROCESSING → {DONE, PENDING (retry), FAILED}. A job never leaves
// DONE or FAILED.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobDone       JobStatus = "DONE"
	JobFailed     JobStatus = "FAILED"
)

// Payload is the schema-less notification body, keyed by convention
// ("title", "message", ...). Values beyond the conventional keys are carried
// through to clients untouched.
type Payload map[string]any

// String returns the payload value under key if it is a string.
func (p Payload) String(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone returns a shallow copy so callers can amend a payload without
// mutating the request that produced it.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Notification is one dispatch event. Immutable once created.
//
// TargetRole is set only when the audience was resolved from a role with no
// explicit user subset; the worker uses it to choose a single room broadcast
// over per-user emission.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Channel    Channel          `json:"channel"`
	Payload    Payload          `json:"payload"`
	TargetRole *Role            `json:"target_role,omitempty"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Recipient is the per-user delivery/read-state record for one notification.
// DeliveredAt is set at most once, by the worker. ReadAt is set by the
// user-facing mark-read path, outside the queue pipeline.
type Recipient struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Status         DeliveryStatus `json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// QueueJob is the unit of asynchronous work: "deliver this notification".
// Exactly one job exists per dispatch; fan-out across recipients happens
// inside the worker, not via multiple jobs.
type QueueJob struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	Status         JobStatus `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      *string   `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is a directory entry. Authentication is handled upstream; the
// pipeline only resolves role → user IDs against this table.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedItem is one entry in a user's notification feed: the recipient row
// joined with its notification.
type FeedItem struct {
	NotificationID string           `json:"notification_id"`
	Type           NotificationType `json:"type"`
	Payload        Payload          `json:"payload"`
	Status         DeliveryStatus   `json:"status"`
	DeliveredAt    *time.Time       `json:"delivered_at,omitempty"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DispatchRequest is the inbound payload for a dispatch. Explicit UserIDs
// take precedence over TargetRole when both are supplied.
type DispatchRequest struct {
	Type       NotificationType `json:"type"`
	TargetRole *Role            `json:"targetRole,omitempty"`
	UserIDs    []string         `json:"userIds,omitempty"`
	Payload    Payload          `json:"payload,omitempty"`
}

// Validate checks the request shape, including the per-type payload
// conventions. Payload shape is checked here, at the enqueue boundary,
// so the worker never sees a malformed payload.
func (r *DispatchRequest) Validate() error {
	if !r.Type.IsValid() {
		return ErrInvalidType
	}
	if len(r.UserIDs) == 0 && r.TargetRole == nil {
		return ErrInvalidAudience
	}
	if r.TargetRole != nil && !r.TargetRole.IsValid() {
		return ErrInvalidAudience
	}

	switch r.Type {
	case TypeAnnouncement:
		if r.Payload.String("title") == "" || r.Payload.String("message") == "" {
			return fmt.Errorf("%w: announcement requires title and message", ErrInvalidPayload)
		}
	case TypeNewEmployeeAdded:
		if r.Payload.String("email") == "" {
			return fmt.Errorf("%w: new-employee notification requires email", ErrInvalidPayload)
		}
	}
	return nil
}

// DispatchResult reports what a dispatch created. Recipients == 0 means the
// resolved audience was empty and nothing was persisted.
type DispatchResult struct {
	NotificationID string `json:"notificationId,omitempty"`
	Recipients     int    `json:"recipients"`
}
