package service

import (
	"context"
	"fmt"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/eligibility"
	"poll-decision-backend/models"
	"poll-decision-backend/results"
)

// ErrResultsHidden is returned when hide_results keeps a viewer from the
// aggregates. It matches apperrors.ErrForbidden.
var ErrResultsHidden = fmt.Errorf("results hidden: %w", apperrors.ErrForbidden)

// View is a poll as one viewer sees it.
type View struct {
	Poll        *models.Poll     `json:"poll"`
	State       models.PollState `json:"state"`
	Admin       bool             `json:"admin"`
	CanVote     bool             `json:"can_vote"`
	Voted       bool             `json:"voted"`
	ShowResults bool             `json:"show_results"`
	MyStance    *models.Stance   `json:"my_stance,omitempty"`
}

// Get returns the poll as viewerID sees it. Only members and administrators
// may look.
func (s *PollLifecycle) Get(ctx context.Context, viewerID, pollID uint) (*View, error) {
	sc := s.scope(s.db)
	poll, err := sc.polls.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	roles, err := sc.resolver.Roles(ctx, poll)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	if !roles.Members.Has(viewerID) && !roles.Administrators.Has(viewerID) {
		return nil, apperrors.Forbidden(viewerID, "view poll")
	}
	mine, err := sc.ledger.CurrentStance(ctx, poll.ID, viewerID)
	if err != nil {
		return nil, err
	}
	voted := mine != nil && mine.Decided()
	return &View{
		Poll:        poll,
		State:       poll.State(s.now(), s.opts.ClosingSoonLead),
		Admin:       roles.Administrators.Has(viewerID),
		CanVote:     !poll.IsClosed() && roles.Voters.Has(viewerID),
		Voted:       voted,
		ShowResults: poll.ShowResults(voted),
		MyStance:    mine,
	}, nil
}

// Results returns the aggregates if hide_results lets viewerID see them.
func (s *PollLifecycle) Results(ctx context.Context, viewerID, pollID uint) (*results.Results, error) {
	view, err := s.Get(ctx, viewerID, pollID)
	if err != nil {
		return nil, err
	}
	if !view.ShowResults {
		return nil, ErrResultsHidden
	}
	return s.results.ForPoll(ctx, view.Poll)
}

// Roles returns the four role sets of a poll. Only administrators may list
// them.
func (s *PollLifecycle) Roles(ctx context.Context, viewerID, pollID uint) (eligibility.Roles, error) {
	sc := s.scope(s.db)
	poll, err := sc.polls.Get(ctx, pollID)
	if err != nil {
		return eligibility.Roles{}, err
	}
	roles, err := sc.resolver.Roles(ctx, poll)
	if err != nil {
		return eligibility.Roles{}, fmt.Errorf("resolve roles: %w", err)
	}
	if !roles.Administrators.Has(viewerID) {
		return eligibility.Roles{}, apperrors.Forbidden(viewerID, "list voters")
	}
	return roles, nil
}

// Events lists the poll's audit events oldest first. Only administrators
// may read them.
func (s *PollLifecycle) Events(ctx context.Context, viewerID, pollID uint) ([]models.Event, error) {
	sc := s.scope(s.db)
	poll, err := sc.polls.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(ctx, sc, poll, viewerID, "view history"); err != nil {
		return nil, err
	}
	return sc.events.ForPoll(ctx, poll.ID)
}
