package service

import (
	"context"
	"fmt"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/models"
	"poll-decision-backend/mq"
	"poll-decision-backend/optionset"
	"poll-decision-backend/repository"
	"poll-decision-backend/templates"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateInput describes a new poll.
type CreateInput struct {
	Title               string                     `json:"title"`
	Details             string                     `json:"details"`
	PollType            string                     `json:"poll_type"`
	GroupID             *uint                      `json:"group_id"`
	DiscussionID        *uint                      `json:"discussion_id"`
	Anonymous           bool                       `json:"anonymous"`
	SpecifiedVotersOnly bool                       `json:"specified_voters_only"`
	HideResults         models.HideResults         `json:"hide_results"`
	MultipleChoice      bool                       `json:"multiple_choice"`
	ClosingAt           *time.Time                 `json:"closing_at"`
	NotifyOnClosingSoon models.NotifyOnClosingSoon `json:"notify_on_closing_soon"`
	CustomFields        map[string]interface{}     `json:"custom_fields"`
	Options             []string                   `json:"options"`
}

// Create validates and stores a poll authored by actorID. All validation
// failures are reported together.
func (s *PollLifecycle) Create(ctx context.Context, actorID uint, in CreateInput) (*models.Poll, error) {
	tmpl, err := s.templates.Lookup(in.PollType)
	if err != nil {
		return nil, apperrors.Invalid("poll_type", apperrors.CodeUnknownPollType)
	}
	now := s.now()

	poll := &models.Poll{
		Title:               in.Title,
		Details:             in.Details,
		PollType:            in.PollType,
		AuthorID:            actorID,
		GroupID:             in.GroupID,
		DiscussionID:        in.DiscussionID,
		Anonymous:           in.Anonymous,
		SpecifiedVotersOnly: in.SpecifiedVotersOnly,
		HideResults:         in.HideResults,
		MultipleChoice:      in.MultipleChoice,
		ClosingAt:           in.ClosingAt,
		NotifyOnClosingSoon: in.NotifyOnClosingSoon,
	}
	if poll.HideResults == "" {
		poll.HideResults = models.HideResultsOff
	}
	if poll.NotifyOnClosingSoon == "" {
		poll.NotifyOnClosingSoon = models.NotifyNobody
	}
	for k, v := range in.CustomFields {
		poll.SetCustomField(k, v)
	}

	names := in.Options
	if len(names) == 0 {
		names = tmpl.DefaultOptions
	}
	reconciled := optionset.Reconcile(nil, names, tmpl)

	var errs apperrors.Collector
	if poll.ClosingAt != nil && !poll.ClosingAt.After(now) {
		errs.Invalid("closing_at", apperrors.CodeClosesInPast)
	}
	if !poll.HideResults.Valid() {
		errs.Invalid("hide_results", apperrors.CodeInvalidHideResults)
	}
	if !poll.NotifyOnClosingSoon.Valid() {
		errs.Invalid("notify_on_closing_soon", apperrors.CodeInvalidNotifySetting)
	}
	for _, field := range tmpl.RequiredCustomFields {
		if !poll.HasCustomField(field) {
			errs.Invalid(field, apperrors.CodeRequiredCustomField)
		}
	}
	if tmpl.RequiresOptions && len(reconciled.Options) == 0 {
		errs.Invalid("options", apperrors.CodeMustHaveOptions)
	}
	errs.Add(clampMinimumChoices(poll, tmpl, len(reconciled.Options)))

	var created *models.Poll
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := s.scope(tx)
		errs.Add(s.placePoll(ctx, sc, poll, in.GroupID, in.DiscussionID))
		if err := errs.Err(); err != nil {
			return err
		}
		if poll.GroupID != nil {
			if err := requireGroupMember(ctx, sc, *poll.GroupID, actorID); err != nil {
				return err
			}
		}

		if err := sc.polls.Create(ctx, poll); err != nil {
			return fmt.Errorf("create poll: %w", err)
		}
		applied, err := sc.options.Apply(ctx, poll.ID, reconciled)
		if err != nil {
			return err
		}
		poll.Options = applied.Options
		if _, err := sc.ledger.RefreshCounts(ctx, poll.ID); err != nil {
			return err
		}
		if _, err := sc.events.Record(ctx, models.EventPollCreated, poll.ID, uintPtr(actorID), map[string]interface{}{
			"poll_type": poll.PollType,
			"options":   reconciled.Names(),
		}); err != nil {
			return err
		}
		created = poll
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("poll created", zap.Uint("poll_id", created.ID), zap.String("poll_type", created.PollType), zap.Uint("author_id", actorID))
	return created, nil
}

// clampMinimumChoices lowers minimum_stance_choices to the option count and
// rejects values below one.
func clampMinimumChoices(poll *models.Poll, tmpl templates.Template, optionCount int) error {
	if !poll.HasCustomField(models.FieldMinimumStanceChoices) {
		return nil
	}
	min := poll.CustomInt(models.FieldMinimumStanceChoices, tmpl.MinimumStanceChoicesDefault)
	if min < 1 {
		return apperrors.Invalid(models.FieldMinimumStanceChoices, apperrors.CodeMinimumStanceChoices)
	}
	if optionCount > 0 && min > optionCount {
		poll.SetCustomField(models.FieldMinimumStanceChoices, optionCount)
	}
	return nil
}

// placePoll sets group and discussion. A discussion dictates the group; an
// explicit group that disagrees is rejected.
func (s *PollLifecycle) placePoll(ctx context.Context, sc *scope, poll *models.Poll, groupID, discussionID *uint) error {
	poll.GroupID = groupID
	poll.DiscussionID = discussionID
	if discussionID == nil {
		return nil
	}
	d, err := sc.memberships.Discussion(ctx, *discussionID)
	if err != nil {
		return fmt.Errorf("load discussion: %w", err)
	}
	if d == nil {
		return apperrors.Invalid("discussion_id", apperrors.CodeDiscussionNotFound)
	}
	if groupID != nil && !sameID(groupID, d.GroupID) {
		return apperrors.Invalid("group_id", apperrors.CodeDiscussionGroup)
	}
	poll.GroupID = d.GroupID
	return nil
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func requireGroupMember(ctx context.Context, sc *scope, groupID, userID uint) error {
	members, err := sc.memberships.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("group members: %w", err)
	}
	for _, m := range members {
		if m.UserID == userID && m.ArchivedAt == nil {
			return nil
		}
	}
	return apperrors.Forbidden(userID, fmt.Sprintf("start a poll in group %d", groupID))
}

// Open sets the closing time of a poll that is not closed. A nil closingAt
// leaves the poll without a deadline.
func (s *PollLifecycle) Open(ctx context.Context, actorID, pollID uint, closingAt *time.Time) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "open poll"); err != nil {
			return err
		}
		if poll.IsClosed() {
			return apperrors.Invalid("poll", apperrors.CodeAlreadyClosed)
		}
		if closingAt != nil && !closingAt.After(s.now()) {
			return apperrors.Invalid("closing_at", apperrors.CodeClosesInPast)
		}
		poll.ClosingAt = closingAt
		if err := sc.polls.Save(ctx, poll); err != nil {
			return err
		}
		_, err := sc.events.Record(ctx, models.EventPollOpened, poll.ID, uintPtr(actorID), map[string]interface{}{
			"closing_at": closingAt,
		})
		return err
	})
}

// UpdateOptions replaces the poll's option names. Removing an option
// removes every choice that pointed at it.
func (s *PollLifecycle) UpdateOptions(ctx context.Context, actorID, pollID uint, names []string) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "edit options"); err != nil {
			return err
		}
		if poll.IsClosed() {
			return apperrors.Invalid("poll", apperrors.CodePollClosed)
		}
		tmpl, err := s.template(poll)
		if err != nil {
			return err
		}

		res := optionset.Reconcile(poll.Options, names, tmpl)
		var errs apperrors.Collector
		if len(res.Added) > 0 && !tmpl.AllowsAddOptions {
			errs.Invalid("options", apperrors.CodeCannotAddOptions)
		}
		if len(res.Removed) > 0 && !tmpl.AllowsRemoveOptions {
			errs.Invalid("options", apperrors.CodeCannotRemoveOptions)
		}
		if tmpl.RequiresOptions && len(res.Options) == 0 {
			errs.Invalid("options", apperrors.CodeMustHaveOptions)
		}
		if err := errs.Err(); err != nil {
			return err
		}
		if !res.Changed() {
			return nil
		}

		applied, err := sc.options.Apply(ctx, poll.ID, res)
		if err != nil {
			return err
		}
		poll.Options = applied.Options
		if len(applied.AffectedStances) > 0 {
			if _, err := sc.ledger.RecalculateLatest(ctx, poll.ID); err != nil {
				return err
			}
		}
		if err := clampMinimumChoices(poll, tmpl, len(applied.Options)); err != nil {
			return err
		}
		if err := sc.polls.Save(ctx, poll); err != nil {
			return err
		}
		if err := s.refresh(ctx, sc, poll); err != nil {
			return err
		}

		removed := make([]string, len(res.Removed))
		for i, o := range res.Removed {
			removed[i] = o.Name
		}
		_, err = sc.events.Record(ctx, models.EventPollOptionsEdited, poll.ID, uintPtr(actorID), map[string]interface{}{
			"added":           res.Added,
			"removed":         removed,
			"deleted_choices": applied.DeletedChoices,
		})
		return err
	})
}

// refresh recomputes counters and copies them onto poll.
func (s *PollLifecycle) refresh(ctx context.Context, sc *scope, poll *models.Poll) error {
	counts, err := sc.ledger.RefreshCounts(ctx, poll.ID)
	if err != nil {
		return err
	}
	poll.StanceCounts = counts.StanceCounts
	poll.VotersCount = counts.VotersCount
	poll.UndecidedVotersCount = counts.UndecidedVotersCount
	return nil
}

// Close closes the poll on behalf of an administrator.
func (s *PollLifecycle) Close(ctx context.Context, actorID, pollID uint) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, post *afterCommit) error {
		roles, err := requireAdmin(ctx, sc, poll, actorID, "close poll")
		if err != nil {
			return err
		}
		if poll.IsClosed() {
			return apperrors.Invalid("poll", apperrors.CodeAlreadyClosed)
		}
		if err := s.closeLocked(ctx, sc, poll, models.EventPollClosedByUser, uintPtr(actorID)); err != nil {
			return err
		}

		recipients := make([]uint, 0, len(roles.Voters))
		for _, id := range roles.Voters.Sorted() {
			if id != actorID {
				recipients = append(recipients, id)
			}
		}
		post.closed = poll
		post.notify(mq.NewNotification(models.EventPollClosedByUser, poll.ID,
			fmt.Sprintf("%d:%s", poll.ID, models.EventPollClosedByUser), recipients,
			map[string]interface{}{"title": poll.Title, "closed_by": actorID}))
		s.metrics.PollsClosed.WithLabelValues("user").Inc()
		return nil
	})
}

func (s *PollLifecycle) closeLocked(ctx context.Context, sc *scope, poll *models.Poll, kind string, actorID *uint) error {
	now := s.now()
	poll.ClosedAt = &now
	if poll.ClosingAt == nil || poll.ClosingAt.After(now) {
		poll.ClosingAt = &now
	}
	if err := sc.polls.Save(ctx, poll); err != nil {
		return fmt.Errorf("close poll: %w", err)
	}
	if err := s.refresh(ctx, sc, poll); err != nil {
		return err
	}
	_, err := sc.events.Record(ctx, kind, poll.ID, actorID, map[string]interface{}{
		"voters_count":     poll.VotersCount,
		"decided_count":    poll.DecidedVotersCount(),
		"cast_stances_pct": poll.CastStancesPct(),
	})
	return err
}

// CloseExpired closes every poll whose closing time has lapsed and returns
// how many it closed. Failures on one poll do not stop the others.
func (s *PollLifecycle) CloseExpired(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := repository.NewPolls(s.db).LapsedButNotClosed(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list lapsed polls: %w", err)
	}

	var (
		closed int
		merr   *multierror.Error
	)
	for _, id := range ids {
		done := false
		_, err := s.inPoll(ctx, id, func(sc *scope, poll *models.Poll, post *afterCommit) error {
			if poll.IsClosed() || poll.ClosingAt == nil || poll.ClosingAt.After(now) {
				return nil
			}
			if err := s.closeLocked(ctx, sc, poll, models.EventPollExpired, nil); err != nil {
				return err
			}
			post.closed = poll
			post.notify(mq.NewNotification(models.EventPollExpired, poll.ID,
				fmt.Sprintf("%d:%s", poll.ID, models.EventPollExpired), []uint{poll.AuthorID},
				map[string]interface{}{"title": poll.Title}))
			done = true
			return nil
		})
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("poll %d: %w", id, err))
			continue
		}
		if done {
			closed++
			s.metrics.PollsClosed.WithLabelValues("expired").Inc()
		}
	}
	if closed > 0 {
		s.log.Info("closed expired polls", zap.Int("count", closed))
	}
	return closed, merr.ErrorOrNil()
}

// SetAnonymous changes anonymity. An anonymous poll can never be made
// non-anonymous, and a closed poll keeps the anonymity its results were
// frozen with.
func (s *PollLifecycle) SetAnonymous(ctx context.Context, actorID, pollID uint, anonymous bool) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "edit poll"); err != nil {
			return err
		}
		if poll.Anonymous && !anonymous {
			return apperrors.Invalid("anonymous", apperrors.CodeCannotDeanonymize)
		}
		if poll.Anonymous == anonymous {
			return nil
		}
		if poll.IsClosed() {
			return apperrors.Invalid("anonymous", apperrors.CodePollClosed)
		}
		poll.Anonymous = anonymous
		return s.saveEdit(ctx, sc, poll, actorID, "anonymous", anonymous)
	})
}

// SetHideResults changes result visibility. An open poll hiding results
// until close cannot be loosened; after close it depends on
// Options.AllowRevealAfterClose.
func (s *PollLifecycle) SetHideResults(ctx context.Context, actorID, pollID uint, value models.HideResults) (*models.Poll, error) {
	if !value.Valid() {
		return nil, apperrors.Invalid("hide_results", apperrors.CodeInvalidHideResults)
	}
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "edit poll"); err != nil {
			return err
		}
		loosens := poll.HideResults == models.HideResultsUntilClosed && value.Strictness() < poll.HideResults.Strictness()
		if loosens && (!poll.IsClosed() || !s.opts.AllowRevealAfterClose) {
			return apperrors.Invalid("hide_results", apperrors.CodeRevealResultsEarly)
		}
		if poll.HideResults == value {
			return nil
		}
		poll.HideResults = value
		return s.saveEdit(ctx, sc, poll, actorID, "hide_results", string(value))
	})
}

// SetGroup moves the poll to groupID. A poll in a discussion must stay in
// the discussion's group.
func (s *PollLifecycle) SetGroup(ctx context.Context, actorID, pollID uint, groupID *uint) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "move poll"); err != nil {
			return err
		}
		if err := s.placePoll(ctx, sc, poll, groupID, poll.DiscussionID); err != nil {
			return err
		}
		return s.saveEdit(ctx, sc, poll, actorID, "group_id", groupID)
	})
}

// SetDiscussion attaches the poll to discussionID, which forces the poll's
// group to the discussion's group. nil detaches it and keeps the group.
func (s *PollLifecycle) SetDiscussion(ctx context.Context, actorID, pollID uint, discussionID *uint) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "move poll"); err != nil {
			return err
		}
		if discussionID == nil {
			poll.DiscussionID = nil
		} else if err := s.placePoll(ctx, sc, poll, nil, discussionID); err != nil {
			return err
		}
		return s.saveEdit(ctx, sc, poll, actorID, "discussion_id", discussionID)
	})
}

func (s *PollLifecycle) saveEdit(ctx context.Context, sc *scope, poll *models.Poll, actorID uint, field string, value interface{}) error {
	if err := sc.polls.Save(ctx, poll); err != nil {
		return err
	}
	_, err := sc.events.Record(ctx, models.EventPollEdited, poll.ID, uintPtr(actorID), map[string]interface{}{
		"field": field,
		"value": value,
	})
	return err
}
