package repository

import (
	"context"
	"testing"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/models"
	"poll-decision-backend/templates"
	"poll-decision-backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipsListsRows(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	g := fx.Group("crew")
	ana, bo, cy := fx.User("ana"), fx.User("bo"), fx.User("cy")
	fx.Member(g, ana, true)
	fx.ArchivedMember(g, bo, false)
	d := fx.Discussion(g)
	fx.Reader(d, cy, ana, false)

	repo := NewMemberships(db)
	ctx := context.Background()

	members, err := repo.GroupMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, ana.ID, members[0].UserID)
	assert.True(t, members[0].Admin)
	assert.Nil(t, members[0].ArchivedAt)
	assert.NotNil(t, members[1].ArchivedAt)

	readers, err := repo.DiscussionReaders(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.Equal(t, cy.ID, readers[0].UserID)
	require.NotNil(t, readers[0].InviterID)
	assert.Equal(t, ana.ID, *readers[0].InviterID)

	got, err := repo.Discussion(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GroupID)
	assert.Equal(t, g.ID, *got.GroupID)

	missing, err := repo.Discussion(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUsersActiveAndLocales(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	ana := fx.User("ana")
	gone := fx.DeactivatedUser("gone")

	users := NewUsers(db)
	ctx := context.Background()

	active, err := users.Active(ctx, []uint{ana.ID, gone.ID, 404})
	require.NoError(t, err)
	assert.Equal(t, map[uint]bool{ana.ID: true}, active)

	empty, err := users.Active(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	locales, err := users.Locales(ctx, []uint{ana.ID, 404})
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{ana.ID: "en"}, locales)
}

func TestEventsRecordAndExistsSince(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	events := NewEvents(db, func() time.Time { return now })
	ctx := context.Background()
	actor := uint(3)

	_, err := events.Record(ctx, models.EventPollClosingSoon, 7, &actor, map[string]interface{}{"recipients": 2})
	require.NoError(t, err)

	ok, err := events.ExistsSince(ctx, models.EventPollClosingSoon, 7, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = events.ExistsSince(ctx, models.EventPollClosingSoon, 7, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = events.ExistsSince(ctx, models.EventPollExpired, 7, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := events.ForPoll(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Poll", list[0].EventableType)
}

func TestEventsClaimIsWonOnce(t *testing.T) {
	db := testutil.NewDB(t)
	events := NewEvents(db, nil)
	ctx := context.Background()
	window := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	won, err := events.Claim(ctx, "7:poll_closing_soon:1714521600", 7, models.EventPollClosingSoon, window)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = events.Claim(ctx, "7:poll_closing_soon:1714521600", 7, models.EventPollClosingSoon, window)
	require.NoError(t, err)
	assert.False(t, won)

	var n int64
	require.NoError(t, db.Model(&models.NotificationClaim{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestPollsQueries(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	ana := fx.User("ana")
	now := time.Now().UTC().Truncate(time.Second)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	lapsed := fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: at(-time.Hour)}, "A")
	soon := fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: at(2 * time.Hour), NotifyOnClosingSoon: models.NotifyVoters}, "A")
	fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: at(3 * time.Hour), NotifyOnClosingSoon: models.NotifyNobody}, "A")
	fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: at(72 * time.Hour), NotifyOnClosingSoon: models.NotifyAuthor}, "A")
	fx.Poll(&models.Poll{PollType: templates.Poll, AuthorID: ana.ID, ClosingAt: at(-2 * time.Hour), ClosedAt: at(-2 * time.Hour)}, "A")

	polls := NewPolls(db)
	ctx := context.Background()

	ids, err := polls.LapsedButNotClosed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uint{lapsed.ID}, ids)

	ids, err = polls.ClosingSoon(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []uint{soon.ID}, ids)

	got, err := polls.Lock(ctx, soon.ID)
	require.NoError(t, err)
	require.Len(t, got.Options, 1)
	assert.Equal(t, "A", got.Options[0].Name)

	got.Title = "renamed"
	require.NoError(t, polls.Save(ctx, got))
	reloaded, err := polls.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Title)

	_, err = polls.Get(ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
