package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"poll-decision-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemberships struct {
	groups  map[uint][]GroupMember
	readers map[uint][]Reader
	err     error
}

func (f *fakeMemberships) GroupMembers(_ context.Context, groupID uint) ([]GroupMember, error) {
	return f.groups[groupID], f.err
}

func (f *fakeMemberships) DiscussionReaders(_ context.Context, discussionID uint) ([]Reader, error) {
	return f.readers[discussionID], f.err
}

type fakeStances map[uint][]StanceHolder

func (f fakeStances) LatestHolders(_ context.Context, pollID uint) ([]StanceHolder, error) {
	return f[pollID], nil
}

type fakeIdentities struct {
	inactive map[uint]bool
}

func (f fakeIdentities) Active(_ context.Context, ids []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = !f.inactive[id]
	}
	return out, nil
}

func uintPtr(v uint) *uint { return &v }

func ids(s IDSet) []uint { return s.Sorted() }

func TestRolesComposeIndependentSources(t *testing.T) {
	revoked := time.Now()
	archived := time.Now()

	mem := &fakeMemberships{
		groups: map[uint][]GroupMember{
			10: {
				{UserID: 2, Admin: true},
				{UserID: 3},
				{UserID: 4, Admin: true, ArchivedAt: &archived},
			},
		},
		readers: map[uint][]Reader{
			20: {
				{UserID: 5, InviterID: uintPtr(1)},
				{UserID: 6, InviterID: uintPtr(1), Admin: true},
				{UserID: 7, InviterID: uintPtr(1), Admin: true, RevokedAt: &revoked},
				{UserID: 8},
			},
		},
	}
	stances := fakeStances{
		1: {
			{ParticipantID: 9, Admin: true},
			{ParticipantID: 3},
			{ParticipantID: 11, RevokedAt: &revoked},
		},
	}
	poll := &models.Poll{AuthorID: 1, GroupID: uintPtr(10), DiscussionID: uintPtr(20)}
	poll.ID = 1

	r := NewResolver(mem, stances, fakeIdentities{})
	roles, err := r.Roles(context.Background(), poll)
	require.NoError(t, err)

	assert.Equal(t, []uint{1, 2, 6, 9}, ids(roles.Administrators))
	assert.Equal(t, []uint{2, 3, 5, 6, 9}, ids(roles.Members))
	assert.Equal(t, ids(roles.Members), ids(roles.Voters))
	assert.Equal(t, []uint{2}, ids(roles.NonVoters))
}

func TestSpecifiedVotersOnlyRestrictsToStanceHolders(t *testing.T) {
	revoked := time.Now()
	mem := &fakeMemberships{groups: map[uint][]GroupMember{10: {{UserID: 2}, {UserID: 3}}}}
	stances := fakeStances{1: {
		{ParticipantID: 3},
		{ParticipantID: 4, RevokedAt: &revoked},
	}}
	poll := &models.Poll{AuthorID: 1, GroupID: uintPtr(10), SpecifiedVotersOnly: true}
	poll.ID = 1

	voters, err := NewResolver(mem, stances, fakeIdentities{}).Voters(context.Background(), poll)
	require.NoError(t, err)
	assert.Equal(t, []uint{3}, ids(voters))
}

func TestRevokedStanceDoesNotRemoveGroupAdmin(t *testing.T) {
	revoked := time.Now()
	mem := &fakeMemberships{groups: map[uint][]GroupMember{10: {{UserID: 2, Admin: true}}}}
	stances := fakeStances{1: {{ParticipantID: 2, Admin: true, RevokedAt: &revoked}}}
	poll := &models.Poll{AuthorID: 1, GroupID: uintPtr(10)}
	poll.ID = 1

	r := NewResolver(mem, stances, fakeIdentities{})
	ok, err := r.IsAdministrator(context.Background(), poll, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	nonVoters, err := r.NonVoters(context.Background(), poll)
	require.NoError(t, err)
	assert.True(t, nonVoters.Has(2))
}

func TestInactiveIdentitiesDropOutOfEveryRole(t *testing.T) {
	mem := &fakeMemberships{groups: map[uint][]GroupMember{10: {{UserID: 2, Admin: true}, {UserID: 3}}}}
	poll := &models.Poll{AuthorID: 2, GroupID: uintPtr(10)}
	poll.ID = 1

	roles, err := NewResolver(mem, fakeStances{}, fakeIdentities{inactive: map[uint]bool{2: true}}).
		Roles(context.Background(), poll)
	require.NoError(t, err)

	assert.False(t, roles.Administrators.Has(2))
	assert.False(t, roles.Members.Has(2))
	assert.False(t, roles.NonVoters.Has(2))
	assert.True(t, roles.Members.Has(3))
}

func TestSourceErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	poll := &models.Poll{AuthorID: 1, GroupID: uintPtr(10)}

	_, err := NewResolver(&fakeMemberships{err: boom}, fakeStances{}, fakeIdentities{}).Roles(context.Background(), poll)
	assert.ErrorIs(t, err, boom)
}

func TestReaderWithoutInviterIsNotMember(t *testing.T) {
	mem := &fakeMemberships{readers: map[uint][]Reader{20: {{UserID: 8}, {UserID: 12, Admin: true}}}}
	poll := &models.Poll{AuthorID: 1, DiscussionID: uintPtr(20)}

	roles, err := NewResolver(mem, fakeStances{}, fakeIdentities{}).Roles(context.Background(), poll)
	require.NoError(t, err)
	assert.False(t, roles.Members.Has(8))
	assert.False(t, roles.Members.Has(12))
	assert.False(t, roles.Administrators.Has(12))
}
