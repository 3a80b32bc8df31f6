// Package service is the poll lifecycle: every mutating operation enters
// here, runs in one transaction scoped to one poll, and hands notifications
// to the dispatcher after commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/cache"
	"poll-decision-backend/eligibility"
	"poll-decision-backend/ledger"
	"poll-decision-backend/metrics"
	"poll-decision-backend/models"
	"poll-decision-backend/mq"
	"poll-decision-backend/optionset"
	"poll-decision-backend/repository"
	"poll-decision-backend/results"
	"poll-decision-backend/templates"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationDispatcher publishes notifications after commit.
type NotificationDispatcher interface {
	Send(ctx context.Context, n mq.Notification) error
}

// EventRecorder appends and lists audit events and claims notification
// dedupe keys.
type EventRecorder interface {
	Record(ctx context.Context, kind string, pollID uint, actorID *uint, payload map[string]interface{}) (*models.Event, error)
	ExistsSince(ctx context.Context, kind string, pollID uint, since time.Time) (bool, error)
	Claim(ctx context.Context, key string, pollID uint, kind string, windowStart time.Time) (bool, error)
	ForPoll(ctx context.Context, pollID uint) ([]models.Event, error)
}

var _ EventRecorder = (*repository.Events)(nil)

// Options tunes lifecycle behaviour.
type Options struct {
	// AllowRevealAfterClose lets hide_results be loosened once a poll is
	// closed.
	AllowRevealAfterClose bool
	ClosingSoonLead       time.Duration
	ClosingSoonRecency    time.Duration
	LockExpiry            time.Duration
	DispatchRetries       uint64
	DispatchInitialDelay  time.Duration
	DispatchMaxElapsed    time.Duration
}

// DefaultOptions matches the environment defaults in config.
func DefaultOptions() Options {
	return Options{
		AllowRevealAfterClose: true,
		ClosingSoonLead:       24 * time.Hour,
		ClosingSoonRecency:    24 * time.Hour,
		LockExpiry:            10 * time.Second,
		DispatchRetries:       3,
		DispatchInitialDelay:  200 * time.Millisecond,
		DispatchMaxElapsed:    30 * time.Second,
	}
}

// Deps are the collaborators of the lifecycle. Only DB and Templates are
// required.
type Deps struct {
	DB         *gorm.DB
	Templates  *templates.Registry
	Dispatcher NotificationDispatcher
	Locker     cache.Locker
	Caches     []results.Cache
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	Now        func() time.Time
}

// PollLifecycle owns poll state transitions.
type PollLifecycle struct {
	db         *gorm.DB
	templates  *templates.Registry
	dispatcher NotificationDispatcher
	locker     cache.Locker
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
	opts       Options

	ledger  *ledger.Ledger
	results *results.Service
}

func New(deps Deps, opts Options) *PollLifecycle {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalLocker()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = mq.NewLogDispatcher(deps.Log)
	}
	if opts.ClosingSoonRecency <= 0 {
		opts.ClosingSoonRecency = opts.ClosingSoonLead
	}

	l := ledger.New(deps.DB, deps.Templates, deps.Now)
	return &PollLifecycle{
		db:         deps.DB,
		templates:  deps.Templates,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		metrics:    deps.Metrics,
		log:        deps.Log.Named("lifecycle"),
		now:        deps.Now,
		opts:       opts,
		ledger:     l,
		results:    results.NewService(deps.DB, results.NewEngine(deps.Templates), l, deps.Log.Named("results"), deps.Caches...),
	}
}

// scope binds every store to one database handle, normally a transaction.
type scope struct {
	polls       *repository.Polls
	options     *optionset.Store
	ledger      *ledger.Ledger
	events      EventRecorder
	memberships *repository.Memberships
	users       *repository.Users
	resolver    *eligibility.Resolver
}

func (s *PollLifecycle) scope(db *gorm.DB) *scope {
	sc := &scope{
		polls:       repository.NewPolls(db),
		options:     optionset.NewStore(db),
		ledger:      s.ledger.WithTx(db),
		events:      repository.NewEvents(db, s.now),
		memberships: repository.NewMemberships(db),
		users:       repository.NewUsers(db),
	}
	sc.resolver = eligibility.NewResolver(sc.memberships, sc.ledger, sc.users)
	return sc
}

// afterCommit collects notifications to send once the transaction commits.
type afterCommit struct {
	notifications []mq.Notification
	closed        *models.Poll
}

func (a *afterCommit) notify(n mq.Notification) {
	a.notifications = append(a.notifications, n)
}

// inPoll locks pollID, runs fn in a transaction and performs the collected
// post-commit work.
func (s *PollLifecycle) inPoll(ctx context.Context, pollID uint, fn func(sc *scope, poll *models.Poll, post *afterCommit) error) (*models.Poll, error) {
	var (
		locked *models.Poll
		post   afterCommit
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc := s.scope(tx)
		poll, err := sc.polls.Lock(ctx, pollID)
		if err != nil {
			return err
		}
		if err := fn(sc, poll, &post); err != nil {
			return err
		}
		locked = poll
		return nil
	})
	if err != nil {
		s.observe(err, pollID)
		return nil, err
	}
	s.runAfterCommit(ctx, &post)
	return locked, nil
}

func (s *PollLifecycle) observe(err error, pollID uint) {
	if errors.Is(err, apperrors.ErrConsistency) {
		s.metrics.ConsistencyViolations.Inc()
		s.log.Error("ledger invariant violated", zap.Uint("poll_id", pollID), zap.Error(err))
	}
}

func (s *PollLifecycle) runAfterCommit(ctx context.Context, post *afterCommit) {
	if post.closed != nil {
		if _, err := s.results.ForPoll(ctx, post.closed); err != nil {
			s.log.Warn("warm results cache failed", zap.Uint("poll_id", post.closed.ID), zap.Error(err))
		}
	}
	for _, n := range post.notifications {
		locales, err := repository.NewUsers(s.db).Locales(ctx, n.RecipientIDs)
		if err != nil {
			s.log.Warn("resolve recipient locales failed", zap.Uint("poll_id", n.PollID), zap.Error(err))
		}
		n.Locales = locales
		s.dispatch(ctx, n)
	}
}

// dispatch sends n with exponential backoff. Failures are logged and
// counted; the committed change stands.
func (s *PollLifecycle) dispatch(ctx context.Context, n mq.Notification) {
	b := backoff.NewExponentialBackOff()
	if s.opts.DispatchInitialDelay > 0 {
		b.InitialInterval = s.opts.DispatchInitialDelay
	}
	if s.opts.DispatchMaxElapsed > 0 {
		b.MaxElapsedTime = s.opts.DispatchMaxElapsed
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.opts.DispatchRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return s.dispatcher.Send(ctx, n)
	}, policy)
	if err != nil {
		s.metrics.NotificationsFailed.WithLabelValues(n.Kind).Inc()
		s.log.Error("notification dispatch failed",
			zap.String("kind", n.Kind),
			zap.Uint("poll_id", n.PollID),
			zap.String("key", n.IdempotencyKey),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return
	}
	s.metrics.NotificationsSent.WithLabelValues(n.Kind).Inc()
}

func (s *PollLifecycle) template(poll *models.Poll) (templates.Template, error) {
	tmpl, err := s.templates.Lookup(poll.PollType)
	if err != nil {
		return templates.Template{}, apperrors.Invalid("poll_type", apperrors.CodeUnknownPollType)
	}
	return tmpl, nil
}

func requireAdmin(ctx context.Context, sc *scope, poll *models.Poll, actorID uint, action string) (eligibility.Roles, error) {
	roles, err := sc.resolver.Roles(ctx, poll)
	if err != nil {
		return roles, fmt.Errorf("resolve roles: %w", err)
	}
	if !roles.Administrators.Has(actorID) {
		return roles, apperrors.Forbidden(actorID, action)
	}
	return roles, nil
}

func uintPtr(v uint) *uint { return &v }
