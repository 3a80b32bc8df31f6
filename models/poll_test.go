package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestPollState(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(2 * time.Hour)
	later := now.Add(72 * time.Hour)

	assert.Equal(t, StateDraft, (&Poll{}).State(now, 24*time.Hour))
	assert.Equal(t, StateActive, (&Poll{ClosingAt: &later}).State(now, 24*time.Hour))
	assert.Equal(t, StateClosingSoon, (&Poll{ClosingAt: &soon}).State(now, 24*time.Hour))
	assert.Equal(t, StateClosed, (&Poll{ClosingAt: &now, ClosedAt: &now}).State(now, 24*time.Hour))
}

func TestShowResults(t *testing.T) {
	closed := time.Now()

	assert.True(t, (&Poll{HideResults: HideResultsOff}).ShowResults(false))
	assert.False(t, (&Poll{HideResults: HideResultsUntilVote}).ShowResults(false))
	assert.True(t, (&Poll{HideResults: HideResultsUntilVote}).ShowResults(true))
	assert.False(t, (&Poll{HideResults: HideResultsUntilClosed}).ShowResults(true))
	assert.True(t, (&Poll{HideResults: HideResultsUntilClosed, ClosedAt: &closed}).ShowResults(false))
}

func TestCountersAndCustomFields(t *testing.T) {
	p := &Poll{
		VotersCount:          4,
		UndecidedVotersCount: 1,
		StanceCounts:         datatypes.JSONSlice[float64]{2, 1.5},
		CustomFields:         datatypes.JSONMap{"max_score": float64(9), "min_score": "", "dots_per_person": "8", "can_respond_maybe": false},
	}

	assert.Equal(t, 3, p.DecidedVotersCount())
	assert.Equal(t, 75, p.CastStancesPct())
	assert.Equal(t, 3.5, p.TotalScore())
	assert.Equal(t, 9, p.CustomInt(FieldMaxScore, 1))
	assert.Equal(t, 8, p.CustomInt(FieldDotsPerPerson, 1))
	assert.Equal(t, 1, p.CustomInt(FieldMinimumStanceChoices, 1))
	assert.False(t, p.HasCustomField(FieldMinScore))
	assert.False(t, p.CustomBool(FieldCanRespondMaybe, true))
	assert.True(t, (&Poll{}).CustomBool(FieldCanRespondMaybe, true))
	assert.True(t, p.HasCustomField(FieldMaxScore))
	assert.Equal(t, 0, (&Poll{}).CastStancesPct())
}

func TestHideResultsStrictness(t *testing.T) {
	assert.Greater(t, HideResultsUntilClosed.Strictness(), HideResultsUntilVote.Strictness())
	assert.Greater(t, HideResultsUntilVote.Strictness(), HideResultsOff.Strictness())
	assert.False(t, HideResults("sometimes").Valid())
}
