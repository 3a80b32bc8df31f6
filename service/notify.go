package service

import (
	"context"
	"fmt"
	"time"

	"poll-decision-backend/models"
	"poll-decision-backend/mq"
	"poll-decision-backend/repository"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// closingSoonKey names the dedupe claim: one per poll and recency window.
func closingSoonKey(pollID uint, windowStart time.Time) string {
	return fmt.Sprintf("%d:%s:%d", pollID, models.EventPollClosingSoon, windowStart.Unix())
}

// NotifyClosingSoon announces polls closing within the lead time. A poll is
// announced at most once per recency window, however many workers run it.
// It returns the number of polls announced.
func (s *PollLifecycle) NotifyClosingSoon(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := repository.NewPolls(s.db).ClosingSoon(ctx, now, s.opts.ClosingSoonLead)
	if err != nil {
		return 0, fmt.Errorf("list closing polls: %w", err)
	}

	var (
		sent int
		merr *multierror.Error
	)
	for _, id := range ids {
		ok, err := s.notifyClosingSoon(ctx, id, now)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("poll %d: %w", id, err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, merr.ErrorOrNil()
}

func (s *PollLifecycle) notifyClosingSoon(ctx context.Context, pollID uint, now time.Time) (bool, error) {
	won := false
	_, err := s.inPoll(ctx, pollID, func(sc *scope, poll *models.Poll, post *afterCommit) error {
		if poll.IsClosed() || poll.ClosingAt == nil || poll.NotifyOnClosingSoon == models.NotifyNobody {
			return nil
		}
		if !poll.ClosingAt.After(now) || poll.ClosingAt.After(now.Add(s.opts.ClosingSoonLead)) {
			return nil
		}

		since := now.Add(-s.opts.ClosingSoonRecency)
		published, err := sc.events.ExistsSince(ctx, models.EventPollClosingSoon, poll.ID, since)
		if err != nil {
			return err
		}
		if published {
			s.metrics.ClosingSoonClaims.WithLabelValues("published").Inc()
			return nil
		}

		window := now.Truncate(s.opts.ClosingSoonRecency)
		key := closingSoonKey(poll.ID, window)
		claimed, err := sc.events.Claim(ctx, key, poll.ID, models.EventPollClosingSoon, window)
		if err != nil {
			return err
		}
		if !claimed {
			s.metrics.ClosingSoonClaims.WithLabelValues("lost").Inc()
			return nil
		}
		s.metrics.ClosingSoonClaims.WithLabelValues("won").Inc()

		recipients, err := s.closingSoonRecipients(ctx, sc, poll)
		if err != nil {
			return err
		}
		if _, err := sc.events.Record(ctx, models.EventPollClosingSoon, poll.ID, nil, map[string]interface{}{
			"recipients": len(recipients),
			"closing_at": poll.ClosingAt,
		}); err != nil {
			return err
		}
		post.notify(mq.NewNotification(models.EventPollClosingSoon, poll.ID, key, recipients,
			map[string]interface{}{"title": poll.Title, "closing_at": poll.ClosingAt}))
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if won {
		s.log.Info("closing soon announced", zap.Uint("poll_id", pollID))
	}
	return won, nil
}

func (s *PollLifecycle) closingSoonRecipients(ctx context.Context, sc *scope, poll *models.Poll) ([]uint, error) {
	switch poll.NotifyOnClosingSoon {
	case models.NotifyAuthor:
		return []uint{poll.AuthorID}, nil
	case models.NotifyVoters, models.NotifyUndecidedVoters:
	default:
		return nil, nil
	}

	roles, err := sc.resolver.Roles(ctx, poll)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	voters := roles.Voters.Sorted()
	if poll.NotifyOnClosingSoon == models.NotifyVoters {
		return voters, nil
	}

	stances, err := sc.ledger.LatestStances(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	decided := make(map[uint]bool, len(stances))
	for _, st := range stances {
		if st.Decided() {
			decided[st.ParticipantID] = true
		}
	}
	out := make([]uint, 0, len(voters))
	for _, id := range voters {
		if !decided[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
