package models

import (
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HideResults controls when aggregates become visible to voters.
type HideResults string

const (
	HideResultsOff         HideResults = "off"
	HideResultsUntilVote   HideResults = "until_vote"
	HideResultsUntilClosed HideResults = "until_closed"
)

// Strictness orders the settings so that "looser" has a meaning.
func (h HideResults) Strictness() int {
	switch h {
	case HideResultsUntilClosed:
		return 2
	case HideResultsUntilVote:
		return 1
	default:
		return 0
	}
}

func (h HideResults) Valid() bool {
	return h == HideResultsOff || h == HideResultsUntilVote || h == HideResultsUntilClosed
}

// NotifyOnClosingSoon selects who hears about a poll that is about to close.
type NotifyOnClosingSoon string

const (
	NotifyNobody          NotifyOnClosingSoon = "nobody"
	NotifyAuthor          NotifyOnClosingSoon = "author"
	NotifyUndecidedVoters NotifyOnClosingSoon = "undecided_voters"
	NotifyVoters          NotifyOnClosingSoon = "voters"
)

func (n NotifyOnClosingSoon) Valid() bool {
	switch n {
	case NotifyNobody, NotifyAuthor, NotifyUndecidedVoters, NotifyVoters:
		return true
	}
	return false
}

// PollState is derived from closing_at/closed_at, never stored.
type PollState string

const (
	StateDraft       PollState = "draft"
	StateActive      PollState = "active"
	StateClosingSoon PollState = "closing_soon"
	StateClosed      PollState = "closed"
)

// Custom field keys understood by the core.
const (
	FieldMinimumStanceChoices = "minimum_stance_choices"
	FieldMaxScore             = "max_score"
	FieldMinScore             = "min_score"
	FieldDotsPerPerson        = "dots_per_person"
	FieldCanRespondMaybe      = "can_respond_maybe"
)

// Poll is a single decision with typed options and a ledger of stances.
type Poll struct {
	gorm.Model
	Title                string                       `gorm:"not null" json:"title"`
	Details              string                       `gorm:"type:text" json:"details"`
	PollType             string                       `gorm:"size:32;not null;index" json:"poll_type"`
	AuthorID             uint                         `gorm:"not null;index" json:"author_id"`
	GroupID              *uint                        `gorm:"index" json:"group_id,omitempty"`
	DiscussionID         *uint                        `gorm:"index" json:"discussion_id,omitempty"`
	Anonymous            bool                         `gorm:"not null;default:false" json:"anonymous"`
	SpecifiedVotersOnly  bool                         `gorm:"not null;default:false" json:"specified_voters_only"`
	HideResults          HideResults                  `gorm:"size:16;not null;default:off" json:"hide_results"`
	MultipleChoice       bool                         `gorm:"not null;default:false" json:"multiple_choice"`
	ClosingAt            *time.Time                   `gorm:"index" json:"closing_at,omitempty"`
	ClosedAt             *time.Time                   `gorm:"index" json:"closed_at,omitempty"`
	NotifyOnClosingSoon  NotifyOnClosingSoon          `gorm:"size:24;not null;default:nobody" json:"notify_on_closing_soon"`
	CustomFields         datatypes.JSONMap            `json:"custom_fields"`
	VotersCount          int                          `gorm:"not null;default:0" json:"voters_count"`
	UndecidedVotersCount int                          `gorm:"not null;default:0" json:"undecided_voters_count"`
	StanceCounts         datatypes.JSONSlice[float64] `json:"stance_counts"`
	Options              []PollOption                 `gorm:"foreignKey:PollID" json:"options,omitempty"`
}

func (p *Poll) IsClosed() bool {
	return p.ClosedAt != nil
}

// State derives the lifecycle state. A poll is closing soon when it closes
// within lead of now.
func (p *Poll) State(now time.Time, lead time.Duration) PollState {
	switch {
	case p.ClosedAt != nil:
		return StateClosed
	case p.ClosingAt == nil:
		return StateDraft
	case lead > 0 && !p.ClosingAt.After(now.Add(lead)):
		return StateClosingSoon
	default:
		return StateActive
	}
}

// ShowResults reports whether a viewer may see aggregates, given whether
// the viewer has already voted.
func (p *Poll) ShowResults(voted bool) bool {
	switch p.HideResults {
	case HideResultsUntilClosed:
		return p.ClosedAt != nil
	case HideResultsUntilVote:
		return p.ClosedAt != nil || voted
	default:
		return true
	}
}

func (p *Poll) DecidedVotersCount() int {
	return p.VotersCount - p.UndecidedVotersCount
}

// CastStancesPct is the whole-number share of voters who have decided.
func (p *Poll) CastStancesPct() int {
	if p.VotersCount == 0 {
		return 0
	}
	return int(float64(p.DecidedVotersCount()) / float64(p.VotersCount) * 100)
}

func (p *Poll) TotalScore() float64 {
	var sum float64
	for _, s := range p.StanceCounts {
		sum += s
	}
	return sum
}

// HasCustomField reports whether key is set to a non-empty value.
func (p *Poll) HasCustomField(key string) bool {
	v, ok := p.CustomFields[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// CustomInt reads an integer custom field. JSON round trips turn numbers into
// float64, so every numeric kind is accepted.
func (p *Poll) CustomInt(key string, fallback int) int {
	v, ok := p.CustomFields[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(math.Round(n))
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func (p *Poll) CustomFloat(key string, fallback float64) float64 {
	switch n := p.CustomFields[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

func (p *Poll) CustomBool(key string, fallback bool) bool {
	if b, ok := p.CustomFields[key].(bool); ok {
		return b
	}
	return fallback
}

func (p *Poll) SetCustomField(key string, value interface{}) {
	if p.CustomFields == nil {
		p.CustomFields = datatypes.JSONMap{}
	}
	p.CustomFields[key] = value
}

// PollOption is one selectable option, ordered by Priority.
type PollOption struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PollID     uint      `gorm:"not null;index" json:"poll_id"`
	Name       string    `gorm:"not null" json:"name"`
	Priority   int       `gorm:"not null;default:0" json:"priority"`
	TotalScore float64   `gorm:"not null;default:0" json:"total_score"`
	VoterCount int       `gorm:"not null;default:0" json:"voter_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
