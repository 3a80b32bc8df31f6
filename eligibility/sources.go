package eligibility

import (
	"context"
	"time"
)

// GroupMember is one membership row as seen by the resolver.
type GroupMember struct {
	UserID     uint
	Admin      bool
	ArchivedAt *time.Time
}

// Reader is one discussion-reader row as seen by the resolver.
type Reader struct {
	UserID    uint
	InviterID *uint
	Admin     bool
	RevokedAt *time.Time
}

// StanceHolder is a participant's latest stance on a poll.
type StanceHolder struct {
	ParticipantID uint
	Admin         bool
	RevokedAt     *time.Time
}

// MembershipSource answers the group and discussion questions.
type MembershipSource interface {
	GroupMembers(ctx context.Context, groupID uint) ([]GroupMember, error)
	DiscussionReaders(ctx context.Context, discussionID uint) ([]Reader, error)
}

// StanceSource lists the latest stances of a poll.
type StanceSource interface {
	LatestHolders(ctx context.Context, pollID uint) ([]StanceHolder, error)
}

// IdentityProvider resolves whether identities are active.
type IdentityProvider interface {
	Active(ctx context.Context, ids []uint) (map[uint]bool, error)
}
