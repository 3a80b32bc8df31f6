package results

import (
	"context"
	"fmt"

	"poll-decision-backend/models"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cache stores results of closed polls, whose aggregates never change.
type Cache interface {
	Get(ctx context.Context, pollID uint) (*Results, bool)
	Put(ctx context.Context, r *Results) error
}

// StanceLoader supplies the latest non-revoked stances with choices.
type StanceLoader interface {
	LatestStances(ctx context.Context, pollID uint) ([]models.Stance, error)
}

// Service loads poll data, computes results and caches closed polls.
type Service struct {
	db      *gorm.DB
	engine  *Engine
	stances StanceLoader
	caches  []Cache
	log     *zap.Logger
}

// NewService builds a results service. Caches are consulted in order and
// filled back on a miss.
func NewService(db *gorm.DB, engine *Engine, stances StanceLoader, log *zap.Logger, caches ...Cache) *Service {
	return &Service{db: db, engine: engine, stances: stances, caches: caches, log: log}
}

// ForPoll returns the results of poll. A cached entry computed under a
// different anonymity setting is ignored and replaced.
func (s *Service) ForPoll(ctx context.Context, poll *models.Poll) (*Results, error) {
	if poll.IsClosed() {
		for i, c := range s.caches {
			if r, ok := c.Get(ctx, poll.ID); ok && r.Anonymous == poll.Anonymous {
				s.backfill(ctx, r, i)
				return r, nil
			}
		}
	}

	var options []models.PollOption
	if err := s.db.WithContext(ctx).Where("poll_id = ?", poll.ID).Order("priority").Find(&options).Error; err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	stances, err := s.stances.LatestStances(ctx, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("load stances: %w", err)
	}
	r, err := s.engine.Compute(poll, options, stances)
	if err != nil {
		return nil, err
	}

	if poll.IsClosed() {
		s.backfill(ctx, r, len(s.caches))
	}
	return r, nil
}

func (s *Service) backfill(ctx context.Context, r *Results, upto int) {
	for _, c := range s.caches[:upto] {
		if err := c.Put(ctx, r); err != nil {
			s.log.Warn("results cache write failed", zap.Uint("poll_id", r.PollID), zap.Error(err))
		}
	}
}

// LRUCache is the in-process cache level.
type LRUCache struct {
	cache *lru.Cache
}

func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, pollID uint) (*Results, bool) {
	v, ok := c.cache.Get(pollID)
	if !ok {
		return nil, false
	}
	return v.(*Results), true
}

func (c *LRUCache) Put(_ context.Context, r *Results) error {
	c.cache.Add(r.PollID, r)
	return nil
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}
