package testutil

import (
	"testing"
	"time"

	"poll-decision-backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fixtures creates rows for tests and fails the test on any error.
type Fixtures struct {
	t  *testing.T
	db *gorm.DB
}

func NewFixtures(t *testing.T, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) User(name string) *models.User {
	f.t.Helper()
	u := &models.User{Name: name, Email: name + "@example.org", Locale: "en"}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *Fixtures) DeactivatedUser(name string) *models.User {
	f.t.Helper()
	u := f.User(name)
	require.NoError(f.t, f.db.Model(u).Update("deactivated", true).Error)
	u.Deactivated = true
	return u
}

func (f *Fixtures) Group(name string) *models.Group {
	f.t.Helper()
	g := &models.Group{Name: name}
	require.NoError(f.t, f.db.Create(g).Error)
	return g
}

func (f *Fixtures) Member(g *models.Group, u *models.User, admin bool) *models.Membership {
	f.t.Helper()
	m := &models.Membership{GroupID: g.ID, UserID: u.ID, Admin: admin}
	require.NoError(f.t, f.db.Create(m).Error)
	return m
}

func (f *Fixtures) ArchivedMember(g *models.Group, u *models.User, admin bool) *models.Membership {
	f.t.Helper()
	m := f.Member(g, u, admin)
	now := time.Now()
	require.NoError(f.t, f.db.Model(m).Update("archived_at", now).Error)
	m.ArchivedAt = &now
	return m
}

func (f *Fixtures) Discussion(g *models.Group) *models.Discussion {
	f.t.Helper()
	d := &models.Discussion{Title: "thread"}
	if g != nil {
		d.GroupID = &g.ID
	}
	require.NoError(f.t, f.db.Create(d).Error)
	return d
}

func (f *Fixtures) Reader(d *models.Discussion, u *models.User, inviter *models.User, admin bool) *models.DiscussionReader {
	f.t.Helper()
	r := &models.DiscussionReader{DiscussionID: d.ID, UserID: u.ID, Admin: admin}
	if inviter != nil {
		r.InviterID = &inviter.ID
	}
	require.NoError(f.t, f.db.Create(r).Error)
	return r
}

// Poll inserts poll together with the named options, in order.
func (f *Fixtures) Poll(poll *models.Poll, optionNames ...string) *models.Poll {
	f.t.Helper()
	if poll.Title == "" {
		poll.Title = "Where should we meet?"
	}
	require.NoError(f.t, f.db.Create(poll).Error)
	for i, name := range optionNames {
		opt := models.PollOption{PollID: poll.ID, Name: name, Priority: i}
		require.NoError(f.t, f.db.Create(&opt).Error)
		poll.Options = append(poll.Options, opt)
	}
	return poll
}

// Stance inserts a raw stance row without going through the ledger.
func (f *Fixtures) Stance(s *models.Stance) *models.Stance {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(s).Error)
	return s
}

func (f *Fixtures) Reload(poll *models.Poll) *models.Poll {
	f.t.Helper()
	var fresh models.Poll
	require.NoError(f.t, f.db.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("priority")
	}).First(&fresh, poll.ID).Error)
	return &fresh
}
