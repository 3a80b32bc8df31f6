package optionset

import (
	"context"
	"testing"

	"poll-decision-backend/models"
	"poll-decision-backend/templates"
	"poll-decision-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestApplyCascadesRemovedOptions(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	ctx := context.Background()

	voter := fx.User("ana")
	poll := fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: voter.ID}, "A", "B", "C")
	stance := fx.Stance(&models.Stance{
		PollID:        poll.ID,
		ParticipantID: voter.ID,
		Latest:        true,
		Choices: []models.StanceChoice{
			{PollOptionID: poll.Options[1].ID, Score: 1},
		},
	})

	store := NewStore(db)
	existing, err := store.Load(ctx, poll.ID)
	require.NoError(t, err)

	res := Reconcile(existing, []string{"A", "C", "D"}, lookup(t, templates.Poll))

	var applied Applied
	err = db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		applied, txErr = store.WithTx(tx).Apply(ctx, poll.ID, res)
		return txErr
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), applied.DeletedChoices)
	assert.Equal(t, []uint{stance.ID}, applied.AffectedStances)

	after, err := store.Load(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, "A", after[0].Name)
	assert.Equal(t, "C", after[1].Name)
	assert.Equal(t, 1, after[1].Priority)
	assert.Equal(t, "D", after[2].Name)
	assert.Equal(t, 2, after[2].Priority)

	var choices int64
	require.NoError(t, db.Model(&models.StanceChoice{}).Where("stance_id = ?", stance.ID).Count(&choices).Error)
	assert.Zero(t, choices)

	again := Reconcile(after, []string{"A", "C", "D"}, lookup(t, templates.Poll))
	assert.False(t, again.Changed())
}
