package service

import (
	"context"
	"fmt"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/ledger"
	"poll-decision-backend/models"
	"poll-decision-backend/mq"

	"go.uber.org/zap"
)

// CastInput is a vote: the chosen options and an optional reason.
type CastInput struct {
	Choices []ledger.ChoiceInput `json:"choices"`
	Reason  string               `json:"reason"`
}

func participantLock(pollID, participantID uint) string {
	return fmt.Sprintf("poll:%d:participant:%d", pollID, participantID)
}

// CastStance records a new stance for actorID and makes it the latest one.
// Calls for the same participant and poll are serialized.
func (s *PollLifecycle) CastStance(ctx context.Context, actorID, pollID uint, in CastInput) (*models.Stance, error) {
	var stance *models.Stance
	err := s.locker.WithLock(ctx, participantLock(pollID, actorID), s.opts.LockExpiry, func() error {
		_, err := s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
			if poll.IsClosed() {
				return apperrors.Invalid("poll", apperrors.CodePollClosed)
			}
			roles, err := sc.resolver.Roles(ctx, poll)
			if err != nil {
				return fmt.Errorf("resolve roles: %w", err)
			}
			if !roles.Voters.Has(actorID) {
				return apperrors.Forbidden(actorID, "vote")
			}

			stance, err = sc.ledger.RecordStance(ctx, poll, actorID, in.Choices, ledger.Cast{
				ActorID: actorID,
				Reason:  in.Reason,
			})
			if err != nil {
				return err
			}
			idx, err := sc.ledger.RecalculateLatest(ctx, poll.ID)
			if err != nil {
				return err
			}
			if idx[actorID] != stance.ID {
				return apperrors.Inconsistent("stance %d did not become latest for participant %d", stance.ID, actorID)
			}
			stance.Latest = true
			if err := s.refresh(ctx, sc, poll); err != nil {
				return err
			}

			var actor *uint
			if !poll.Anonymous {
				actor = uintPtr(actorID)
			}
			_, err = sc.events.Record(ctx, models.EventStanceCreated, poll.ID, actor, map[string]interface{}{
				"stance_id": stance.ID,
				"decided":   stance.Decided(),
			})
			if err == nil {
				s.metrics.StancesRecorded.WithLabelValues(poll.PollType).Inc()
			}
			return err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("stance recorded", zap.Uint("poll_id", pollID), zap.Uint("stance_id", stance.ID))
	return stance, nil
}

// InviteVoters gives each active user in userIDs an undecided stance, which
// makes them voters even on specified-voters-only polls.
func (s *PollLifecycle) InviteVoters(ctx context.Context, actorID, pollID uint, userIDs []uint, admin bool) ([]models.Stance, error) {
	var created []models.Stance
	_, err := s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, post *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "invite voters"); err != nil {
			return err
		}
		if poll.IsClosed() {
			return apperrors.Invalid("poll", apperrors.CodePollClosed)
		}

		active, err := sc.users.Active(ctx, userIDs)
		if err != nil {
			return fmt.Errorf("check users: %w", err)
		}
		invitees := make([]uint, 0, len(userIDs))
		seen := make(map[uint]bool, len(userIDs))
		for _, id := range userIDs {
			if active[id] && !seen[id] {
				seen[id] = true
				invitees = append(invitees, id)
			}
		}

		created, err = sc.ledger.Invite(ctx, poll.ID, invitees, actorID, admin)
		if err != nil {
			return err
		}
		if _, err := sc.ledger.RecalculateLatest(ctx, poll.ID); err != nil {
			return err
		}
		if err := s.refresh(ctx, sc, poll); err != nil {
			return err
		}

		recipients := make([]uint, len(created))
		for i, st := range created {
			recipients[i] = st.ParticipantID
		}
		event, err := sc.events.Record(ctx, models.EventVotersInvited, poll.ID, uintPtr(actorID), map[string]interface{}{
			"participant_ids": recipients,
			"admin":           admin,
		})
		if err != nil {
			return err
		}
		if len(recipients) > 0 {
			post.notify(mq.NewNotification(models.EventVotersInvited, poll.ID,
				fmt.Sprintf("%d:%s:%d", poll.ID, models.EventVotersInvited, event.ID), recipients,
				map[string]interface{}{"title": poll.Title, "inviter_id": actorID}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RevokeVoter revokes every stance participantID holds on the poll. The
// participant may still vote through a group or discussion membership.
func (s *PollLifecycle) RevokeVoter(ctx context.Context, actorID, pollID, participantID uint) (*models.Poll, error) {
	return s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, _ *afterCommit) error {
		if _, err := requireAdmin(ctx, sc, poll, actorID, "revoke voters"); err != nil {
			return err
		}
		if poll.IsClosed() {
			return apperrors.Invalid("poll", apperrors.CodePollClosed)
		}
		n, err := sc.ledger.Revoke(ctx, poll.ID, participantID)
		if err != nil {
			return fmt.Errorf("revoke: %w", err)
		}
		if n == 0 {
			return apperrors.Invalid("participant_id", apperrors.CodeParticipantNotInvited)
		}
		if _, err := sc.ledger.RecalculateLatest(ctx, poll.ID); err != nil {
			return err
		}
		if err := s.refresh(ctx, sc, poll); err != nil {
			return err
		}
		_, err = sc.events.Record(ctx, models.EventVoterRevoked, poll.ID, uintPtr(actorID), map[string]interface{}{
			"participant_id": participantID,
			"stances":        n,
		})
		return err
	})
}
