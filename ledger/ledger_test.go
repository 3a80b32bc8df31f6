package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/models"
	"poll-decision-backend/templates"
	"poll-decision-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	db  *gorm.DB
	fx  *testutil.Fixtures
	clk *clock
	l   *Ledger
}

func setup(t *testing.T) *env {
	db := testutil.NewDB(t)
	clk := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return &env{
		db:  db,
		fx:  testutil.NewFixtures(t, db),
		clk: clk,
		l:   New(db, templates.Default(), clk.now),
	}
}

// cast records a stance and recalculates in one transaction, the way the
// lifecycle composes them.
func (e *env) cast(t *testing.T, poll *models.Poll, participant uint, choices ...ChoiceInput) (*models.Stance, error) {
	t.Helper()
	var stance *models.Stance
	err := e.db.Transaction(func(tx *gorm.DB) error {
		l := e.l.WithTx(tx)
		var err error
		stance, err = l.RecordStance(context.Background(), poll, participant, choices, Cast{ActorID: participant})
		if err != nil {
			return err
		}
		_, err = l.RecalculateLatest(context.Background(), poll.ID)
		return err
	})
	return stance, err
}

func pick(ids ...uint) []ChoiceInput {
	out := make([]ChoiceInput, len(ids))
	for i, id := range ids {
		out[i] = ChoiceInput{PollOptionID: id}
	}
	return out
}

func latestFor(t *testing.T, db *gorm.DB, pollID, participant uint) []models.Stance {
	t.Helper()
	var rows []models.Stance
	require.NoError(t, db.Where("poll_id = ? AND participant_id = ? AND latest = ?", pollID, participant, true).Find(&rows).Error)
	return rows
}

func TestRecordStanceKeepsHistoryAndMovesLatest(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A", "B")

	first, err := e.cast(t, poll, ana.ID, pick(poll.Options[0].ID)...)
	require.NoError(t, err)
	e.clk.advance(time.Minute)
	second, err := e.cast(t, poll, ana.ID, pick(poll.Options[1].ID)...)
	require.NoError(t, err)

	var total int64
	require.NoError(t, e.db.Model(&models.Stance{}).Where("poll_id = ?", poll.ID).Count(&total).Error)
	assert.Equal(t, int64(2), total)

	latest := latestFor(t, e.db, poll.ID, ana.ID)
	require.Len(t, latest, 1)
	assert.Equal(t, second.ID, latest[0].ID)
	assert.NotEqual(t, first.ID, second.ID)

	var firstChoices int64
	require.NoError(t, e.db.Model(&models.StanceChoice{}).Where("stance_id = ?", first.ID).Count(&firstChoices).Error)
	assert.Equal(t, int64(1), firstChoices)
}

func TestRecalculateLatestTieBreaksOnHighestID(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a := e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, CreatedAt: at})
	b := e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, CreatedAt: at})
	require.Greater(t, b.ID, a.ID)

	for i := 0; i < 3; i++ {
		idx, err := e.l.RecalculateLatest(context.Background(), poll.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, idx[ana.ID])

		latest := latestFor(t, e.db, poll.ID, ana.ID)
		require.Len(t, latest, 1)
		assert.Equal(t, b.ID, latest[0].ID)
	}
}

func TestRecalculateLatestSkipsRevokedStances(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	ben := e.fx.User("ben")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	revoked := e.clk.t

	older := e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, CreatedAt: e.clk.t})
	e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, CreatedAt: e.clk.t.Add(time.Hour), RevokedAt: &revoked})
	e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ben.ID, CreatedAt: e.clk.t, RevokedAt: &revoked})

	idx, err := e.l.RecalculateLatest(context.Background(), poll.ID)
	require.NoError(t, err)

	assert.Equal(t, Index{ana.ID: older.ID}, idx)
	assert.Empty(t, latestFor(t, e.db, poll.ID, ben.ID))
}

func TestRecordStanceRejectsClosedPoll(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	closed := e.clk.t
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: &closed, ClosedAt: &closed}, "A")

	_, err := e.cast(t, poll, ana.ID, pick(poll.Options[0].ID)...)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.True(t, apperrors.HasCode(err, apperrors.CodePollClosed))
}

func TestRecordStanceSingleChoiceRejectsTwoOptions(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A", "B")

	_, err := e.cast(t, poll, ana.ID, pick(poll.Options[0].ID)...)
	require.NoError(t, err)

	_, err = e.cast(t, poll, ana.ID, pick(poll.Options[0].ID, poll.Options[1].ID)...)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSingleChoice))

	latest := latestFor(t, e.db, poll.ID, ana.ID)
	require.Len(t, latest, 1)
}

func TestRecordStanceMultipleChoiceAllowsTwoOptions(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, MultipleChoice: true}, "A", "B")

	stance, err := e.cast(t, poll, ana.ID, pick(poll.Options[0].ID, poll.Options[1].ID)...)
	require.NoError(t, err)
	assert.Len(t, stance.Choices, 2)
	assert.NotNil(t, stance.CastAt)
}

func TestRecordStanceRejectsForeignOption(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	other := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "X")

	_, err := e.cast(t, poll, ana.ID, pick(other.Options[0].ID)...)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidOption))
}

func TestMinimumChoicesIsClampedToOptionCount(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{
		PollType:     templates.RankedChoice,
		AuthorID:     ana.ID,
		CustomFields: map[string]interface{}{models.FieldMinimumStanceChoices: float64(5)},
	}, "A", "B")

	_, err := e.cast(t, poll, ana.ID, ChoiceInput{PollOptionID: poll.Options[0].ID, Rank: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTooFewChoices))

	stance, err := e.cast(t, poll, ana.ID,
		ChoiceInput{PollOptionID: poll.Options[1].ID, Rank: 1},
		ChoiceInput{PollOptionID: poll.Options[0].ID, Rank: 2},
	)
	require.NoError(t, err)
	require.Len(t, stance.Choices, 2)
	assert.Equal(t, 2.0, stance.Choices[0].Score)
	assert.Equal(t, 1.0, stance.Choices[1].Score)
}

func TestDotVoteBudget(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{
		PollType:     templates.DotVote,
		AuthorID:     ana.ID,
		CustomFields: map[string]interface{}{models.FieldDotsPerPerson: float64(5)},
	}, "A", "B")
	three, four := 3.0, 4.0

	_, err := e.cast(t, poll, ana.ID,
		ChoiceInput{PollOptionID: poll.Options[0].ID, Score: &three},
		ChoiceInput{PollOptionID: poll.Options[1].ID, Score: &four},
	)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTooManyDots))
}

func TestMeetingMaybeFollowsCanRespondMaybe(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	open := e.fx.Poll(&models.Poll{PollType: templates.Meeting, AuthorID: ana.ID}, "2024-04-01", "2024-04-02")
	strict := e.fx.Poll(&models.Poll{
		PollType:     templates.Meeting,
		AuthorID:     ana.ID,
		CustomFields: map[string]interface{}{models.FieldCanRespondMaybe: false},
	}, "2024-04-01", "2024-04-02")
	yes, maybe := 2.0, 1.0

	_, err := e.cast(t, open, ana.ID, ChoiceInput{PollOptionID: open.Options[0].ID, Score: &maybe})
	require.NoError(t, err)

	_, err = e.cast(t, strict, ana.ID, ChoiceInput{PollOptionID: strict.Options[0].ID, Score: &maybe})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeScoreOutOfRange))

	_, err = e.cast(t, strict, ana.ID, ChoiceInput{PollOptionID: strict.Options[0].ID, Score: &yes})
	require.NoError(t, err)
}

func TestRecordStanceDetectsDuplicateLatest(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	// Bypass the partial unique index to simulate corrupted state.
	require.NoError(t, e.db.Exec("DROP INDEX idx_stances_one_latest").Error)
	e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, Latest: true})
	e.fx.Stance(&models.Stance{PollID: poll.ID, ParticipantID: ana.ID, Latest: true})

	_, err := e.cast(t, poll, ana.ID, pick(poll.Options[0].ID)...)
	assert.True(t, errors.Is(err, apperrors.ErrConsistency))

	var total int64
	require.NoError(t, e.db.Model(&models.Stance{}).Where("poll_id = ?", poll.ID).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestDecidedAndUndecidedCounts(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	ben := e.fx.User("ben")
	cy := e.fx.User("cy")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A", "B")
	ctx := context.Background()

	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		l := e.l.WithTx(tx)
		if _, err := l.Invite(ctx, poll.ID, []uint{ben.ID, cy.ID}, ana.ID, false); err != nil {
			return err
		}
		_, err := l.RecalculateLatest(ctx, poll.ID)
		return err
	}))
	e.clk.advance(time.Minute)
	_, err := e.cast(t, poll, ben.ID, pick(poll.Options[1].ID)...)
	require.NoError(t, err)

	decided, err := e.l.DecidedCount(ctx, poll.ID)
	require.NoError(t, err)
	undecided, err := e.l.UndecidedCount(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), decided)
	assert.Equal(t, int64(1), undecided)

	counts, err := e.l.RefreshCounts(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, counts.StanceCounts)
	assert.Equal(t, 2, counts.VotersCount)
	assert.Equal(t, 1, counts.UndecidedVotersCount)

	fresh := e.fx.Reload(poll)
	assert.Equal(t, 2, fresh.VotersCount)
	assert.Equal(t, 1, fresh.UndecidedVotersCount)
	assert.Equal(t, []float64{0, 1}, []float64(fresh.StanceCounts))
	assert.Equal(t, 1, fresh.Options[1].VoterCount)
	assert.Equal(t, 50, fresh.CastStancesPct())

	// The cast inherited the inviter from the invitation stance.
	cur, err := e.l.CurrentStance(ctx, poll.ID, ben.ID)
	require.NoError(t, err)
	require.NotNil(t, cur.InviterID)
	assert.Equal(t, ana.ID, *cur.InviterID)
}

func TestRevokeRemovesLatest(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	ben := e.fx.User("ben")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	ctx := context.Background()

	_, err := e.cast(t, poll, ben.ID, pick(poll.Options[0].ID)...)
	require.NoError(t, err)

	require.NoError(t, e.db.Transaction(func(tx *gorm.DB) error {
		l := e.l.WithTx(tx)
		n, err := l.Revoke(ctx, poll.ID, ben.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		_, err = l.RecalculateLatest(ctx, poll.ID)
		return err
	}))

	holders, err := e.l.LatestHolders(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestInvitePromotesExistingStanceToAdmin(t *testing.T) {
	e := setup(t)
	ana := e.fx.User("ana")
	ben := e.fx.User("ben")
	poll := e.fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID}, "A")
	ctx := context.Background()

	_, err := e.cast(t, poll, ben.ID, pick(poll.Options[0].ID)...)
	require.NoError(t, err)

	created, err := e.l.Invite(ctx, poll.ID, []uint{ben.ID}, ana.ID, true)
	require.NoError(t, err)
	assert.Empty(t, created)

	holders, err := e.l.LatestHolders(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.True(t, holders[0].Admin)
}
