// Package eligibility derives who may administer, vote on, or read a poll
// from three independent sources: group membership, discussion access, and
// the poll's own stances.
package eligibility

import (
	"context"
	"fmt"
	"sort"

	"poll-decision-backend/models"
)

// IDSet is a set of user IDs.
type IDSet map[uint]struct{}

func (s IDSet) Has(id uint) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) add(id uint) {
	s[id] = struct{}{}
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []uint {
	out := make([]uint, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func union(sets ...IDSet) IDSet {
	out := IDSet{}
	for _, s := range sets {
		for id := range s {
			out.add(id)
		}
	}
	return out
}

func minus(a, b IDSet) IDSet {
	out := IDSet{}
	for id := range a {
		if !b.Has(id) {
			out.add(id)
		}
	}
	return out
}

// Facts holds the per-source predicates for one poll. Each field is the set
// of identities for which a single predicate holds.
type Facts struct {
	Author uint

	GroupAdmins  IDSet // member, admin, not archived
	GroupMembers IDSet // member, not archived

	ReaderAdmins  IDSet // reader, admin, not revoked
	ReaderMembers IDSet // reader, invited, not revoked

	StanceAdmins  IDSet // latest stance, admin, not revoked
	StanceHolders IDSet // latest stance, not revoked

	SpecifiedVotersOnly bool
}

// Roles are the derived role sets, already filtered to active identities.
type Roles struct {
	Administrators IDSet
	Voters         IDSet
	Members        IDSet
	NonVoters      IDSet
}

// Compose evaluates the role predicates as unions of the source predicates.
// Active is applied last so an inactive identity drops out of every role.
func (f Facts) Compose(active func(uint) bool) Roles {
	admins := union(f.ReaderAdmins, f.GroupAdmins, f.StanceAdmins)
	if f.Author != 0 {
		admins.add(f.Author)
	}
	members := union(f.ReaderMembers, f.GroupMembers, f.StanceHolders)

	voters := members
	if f.SpecifiedVotersOnly {
		voters = f.StanceHolders
	}

	return Roles{
		Administrators: filter(admins, active),
		Voters:         filter(voters, active),
		Members:        filter(members, active),
		NonVoters:      filter(minus(f.GroupMembers, f.StanceHolders), active),
	}
}

func filter(s IDSet, keep func(uint) bool) IDSet {
	out := IDSet{}
	for id := range s {
		if keep(id) {
			out.add(id)
		}
	}
	return out
}

// Resolver loads facts from its sources and composes them into roles.
type Resolver struct {
	memberships MembershipSource
	stances     StanceSource
	identities  IdentityProvider
}

func NewResolver(memberships MembershipSource, stances StanceSource, identities IdentityProvider) *Resolver {
	return &Resolver{memberships: memberships, stances: stances, identities: identities}
}

// Facts gathers every source predicate for poll.
func (r *Resolver) Facts(ctx context.Context, poll *models.Poll) (Facts, error) {
	f := Facts{
		Author:              poll.AuthorID,
		GroupAdmins:         IDSet{},
		GroupMembers:        IDSet{},
		ReaderAdmins:        IDSet{},
		ReaderMembers:       IDSet{},
		StanceAdmins:        IDSet{},
		StanceHolders:       IDSet{},
		SpecifiedVotersOnly: poll.SpecifiedVotersOnly,
	}

	if poll.GroupID != nil {
		members, err := r.memberships.GroupMembers(ctx, *poll.GroupID)
		if err != nil {
			return f, fmt.Errorf("group members: %w", err)
		}
		for _, m := range members {
			if m.ArchivedAt != nil {
				continue
			}
			f.GroupMembers.add(m.UserID)
			if m.Admin {
				f.GroupAdmins.add(m.UserID)
			}
		}
	}

	if poll.DiscussionID != nil {
		readers, err := r.memberships.DiscussionReaders(ctx, *poll.DiscussionID)
		if err != nil {
			return f, fmt.Errorf("discussion readers: %w", err)
		}
		for _, rd := range readers {
			if rd.RevokedAt != nil {
				continue
			}
			if rd.InviterID == nil {
				continue
			}
			f.ReaderMembers.add(rd.UserID)
			if rd.Admin {
				f.ReaderAdmins.add(rd.UserID)
			}
		}
	}

	holders, err := r.stances.LatestHolders(ctx, poll.ID)
	if err != nil {
		return f, fmt.Errorf("latest stances: %w", err)
	}
	for _, h := range holders {
		if h.RevokedAt != nil {
			continue
		}
		f.StanceHolders.add(h.ParticipantID)
		if h.Admin {
			f.StanceAdmins.add(h.ParticipantID)
		}
	}
	return f, nil
}

// Roles computes all four role sets for poll.
func (r *Resolver) Roles(ctx context.Context, poll *models.Poll) (Roles, error) {
	f, err := r.Facts(ctx, poll)
	if err != nil {
		return Roles{}, err
	}

	candidates := union(f.GroupMembers, f.GroupAdmins, f.ReaderAdmins, f.ReaderMembers, f.StanceHolders)
	if f.Author != 0 {
		candidates.add(f.Author)
	}
	active, err := r.identities.Active(ctx, candidates.Sorted())
	if err != nil {
		return Roles{}, fmt.Errorf("active identities: %w", err)
	}
	return f.Compose(func(id uint) bool { return active[id] }), nil
}

func (r *Resolver) Administrators(ctx context.Context, poll *models.Poll) (IDSet, error) {
	roles, err := r.Roles(ctx, poll)
	return roles.Administrators, err
}

func (r *Resolver) Voters(ctx context.Context, poll *models.Poll) (IDSet, error) {
	roles, err := r.Roles(ctx, poll)
	return roles.Voters, err
}

func (r *Resolver) Members(ctx context.Context, poll *models.Poll) (IDSet, error) {
	roles, err := r.Roles(ctx, poll)
	return roles.Members, err
}

func (r *Resolver) NonVoters(ctx context.Context, poll *models.Poll) (IDSet, error) {
	roles, err := r.Roles(ctx, poll)
	return roles.NonVoters, err
}

// IsAdministrator reports whether userID administers poll.
func (r *Resolver) IsAdministrator(ctx context.Context, poll *models.Poll, userID uint) (bool, error) {
	admins, err := r.Administrators(ctx, poll)
	if err != nil {
		return false, err
	}
	return admins.Has(userID), nil
}
