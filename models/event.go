package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event kinds written by the lifecycle.
const (
	EventPollCreated       = "poll_created"
	EventPollOpened        = "poll_opened"
	EventPollOptionsEdited = "poll_options_edited"
	EventStanceCreated     = "stance_created"
	EventPollClosedByUser  = "poll_closed_by_user"
	EventPollExpired       = "poll_expired"
	EventPollClosingSoon   = "poll_closing_soon"
	EventPollEdited        = "poll_edited"
	EventVotersInvited     = "voters_invited"
	EventVoterRevoked      = "voter_revoked"
)

// Event is an append-only audit record.
type Event struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Kind          string            `gorm:"size:64;not null;index:idx_events_eventable" json:"kind"`
	EventableType string            `gorm:"size:32;not null;index:idx_events_eventable" json:"eventable_type"`
	EventableID   uint              `gorm:"not null;index:idx_events_eventable" json:"eventable_id"`
	ActorID       *uint             `json:"actor_id,omitempty"`
	Payload       datatypes.JSONMap `json:"payload,omitempty"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
}

// NotificationClaim is the storage-level compare-and-set for deduplicated
// notifications. Only the inserter of a DedupeKey may send.
type NotificationClaim struct {
	DedupeKey   string    `gorm:"primaryKey;size:128" json:"dedupe_key"`
	PollID      uint      `gorm:"not null;index" json:"poll_id"`
	Kind        string    `gorm:"size:64;not null" json:"kind"`
	WindowStart time.Time `gorm:"not null" json:"window_start"`
	CreatedAt   time.Time `json:"created_at"`
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&Membership{},
		&Discussion{},
		&DiscussionReader{},
		&Poll{},
		&PollOption{},
		&Stance{},
		&StanceChoice{},
		&Event{},
		&NotificationClaim{},
	}
}
