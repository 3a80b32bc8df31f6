package models

import "time"

// User is the identity record consulted for active status and locale.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `json:"name"`
	Email       string    `gorm:"index" json:"email"`
	Locale      string    `gorm:"size:16;default:en" json:"locale"`
	TimeZone    string    `gorm:"size:64" json:"time_zone"`
	Deactivated bool      `gorm:"not null;default:false" json:"deactivated"`
	CreatedAt   time.Time `json:"created_at"`
}

type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership places a user in a group. Archived memberships grant nothing.
type Membership struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	GroupID    uint       `gorm:"not null;uniqueIndex:idx_memberships_group_user" json:"group_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_memberships_group_user" json:"user_id"`
	Admin      bool       `gorm:"not null;default:false" json:"admin"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Discussion struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   *uint     `gorm:"index" json:"group_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// DiscussionReader records that a discussion was shared with a user.
type DiscussionReader struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DiscussionID uint       `gorm:"not null;uniqueIndex:idx_readers_discussion_user" json:"discussion_id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_readers_discussion_user" json:"user_id"`
	InviterID    *uint      `json:"inviter_id,omitempty"`
	Admin        bool       `gorm:"not null;default:false" json:"admin"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
