package models

import "time"

// Stance is one recorded vote submission. Rows are never rewritten by a new
// vote; Latest marks the participant's current one.
type Stance struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PollID        uint           `gorm:"not null;index:idx_stances_poll_participant" json:"poll_id"`
	ParticipantID uint           `gorm:"not null;index:idx_stances_poll_participant" json:"participant_id"`
	InviterID     *uint          `json:"inviter_id,omitempty"`
	Admin         bool           `gorm:"not null;default:false" json:"admin"`
	Latest        bool           `gorm:"not null;default:false;index" json:"latest"`
	RevokedAt     *time.Time     `json:"revoked_at,omitempty"`
	Reason        string         `gorm:"type:text" json:"reason,omitempty"`
	CastAt        *time.Time     `json:"cast_at,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Choices       []StanceChoice `gorm:"foreignKey:StanceID" json:"choices,omitempty"`
}

func (s *Stance) Revoked() bool {
	return s.RevokedAt != nil
}

// Decided is true once the stance carries at least one choice.
func (s *Stance) Decided() bool {
	return len(s.Choices) > 0
}

// StanceChoice ties a stance to one option of the same poll.
type StanceChoice struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	StanceID     uint    `gorm:"not null;index" json:"stance_id"`
	PollOptionID uint    `gorm:"not null;index" json:"poll_option_id"`
	Score        float64 `gorm:"not null;default:1" json:"score"`
	Rank         int     `gorm:"not null;default:0" json:"rank,omitempty"`
}
