// Package ledger is the append-only store of stances. It maintains the
// participant -> latest stance index and the derived poll counters.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/eligibility"
	"poll-decision-backend/models"
	"poll-decision-backend/templates"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Cast carries who is recording a stance and on what terms.
type Cast struct {
	ActorID   uint
	Admin     bool
	InviterID *uint
	Reason    string
}

// Index maps participant IDs to their latest stance ID.
type Index map[uint]uint

// Ledger reads and writes stances. Mutating methods must run on a ledger
// bound to the caller's transaction via WithTx.
type Ledger struct {
	db        *gorm.DB
	templates *templates.Registry
	now       func() time.Time
}

func New(db *gorm.DB, reg *templates.Registry, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, templates: reg, now: now}
}

func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, templates: l.templates, now: l.now}
}

func (l *Ledger) latest(ctx context.Context, pollID uint) *gorm.DB {
	return l.db.WithContext(ctx).Model(&models.Stance{}).
		Where("stances.poll_id = ? AND stances.latest = ? AND stances.revoked_at IS NULL", pollID, true)
}

// RecordStance appends a stance for participantID. Prior stances are left
// untouched; RecalculateLatest must follow in the same transaction.
func (l *Ledger) RecordStance(ctx context.Context, poll *models.Poll, participantID uint, choices []ChoiceInput, cast Cast) (*models.Stance, error) {
	if poll.IsClosed() {
		return nil, apperrors.Invalid("poll", apperrors.CodePollClosed)
	}
	tmpl, err := l.templates.Lookup(poll.PollType)
	if err != nil {
		return nil, apperrors.Invalid("poll_type", apperrors.CodeUnknownPollType)
	}

	var options []models.PollOption
	if err := l.db.WithContext(ctx).Where("poll_id = ?", poll.ID).Order("priority").Find(&options).Error; err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	stored, err := ValidateChoices(poll, tmpl, options, choices)
	if err != nil {
		return nil, err
	}

	prev, err := l.CurrentStance(ctx, poll.ID, participantID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	stance := &models.Stance{
		PollID:        poll.ID,
		ParticipantID: participantID,
		InviterID:     cast.InviterID,
		Admin:         cast.Admin,
		Reason:        cast.Reason,
		CreatedAt:     now,
		Choices:       stored,
	}
	if prev != nil {
		stance.Admin = stance.Admin || prev.Admin
		if stance.InviterID == nil {
			stance.InviterID = prev.InviterID
		}
	}
	if len(stored) > 0 {
		stance.CastAt = &now
	}

	if err := l.db.WithContext(ctx).Create(stance).Error; err != nil {
		return nil, fmt.Errorf("create stance: %w", err)
	}
	return stance, nil
}

// CurrentStance returns the participant's latest non-revoked stance, or nil.
// More than one is an invariant breach.
func (l *Ledger) CurrentStance(ctx context.Context, pollID, participantID uint) (*models.Stance, error) {
	var rows []models.Stance
	if err := l.latest(ctx, pollID).
		Where("stances.participant_id = ?", participantID).
		Preload("Choices").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load latest stance: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, apperrors.Inconsistent("participant %d has %d latest stances on poll %d", participantID, len(rows), pollID)
	}
}

// BuildIndex picks each participant's most recent non-revoked stance. Equal
// creation times resolve to the highest stance ID.
func (l *Ledger) BuildIndex(ctx context.Context, pollID uint) (Index, error) {
	var rows []struct {
		ID            uint
		ParticipantID uint
		CreatedAt     time.Time
	}
	if err := l.db.WithContext(ctx).Model(&models.Stance{}).
		Select("id, participant_id, created_at").
		Where("poll_id = ? AND revoked_at IS NULL", pollID).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan stances: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ParticipantID != b.ParticipantID {
			return a.ParticipantID < b.ParticipantID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	idx := make(Index, len(rows))
	for _, r := range rows {
		if _, ok := idx[r.ParticipantID]; !ok {
			idx[r.ParticipantID] = r.ID
		}
	}
	return idx, nil
}

// RecalculateLatest rebuilds the latest flags for pollID from the index:
// every flag is cleared, then the indexed stances are set.
func (l *Ledger) RecalculateLatest(ctx context.Context, pollID uint) (Index, error) {
	idx, err := l.BuildIndex(ctx, pollID)
	if err != nil {
		return nil, err
	}

	db := l.db.WithContext(ctx)
	if err := db.Model(&models.Stance{}).
		Where("poll_id = ? AND latest = ?", pollID, true).
		Update("latest", false).Error; err != nil {
		return nil, fmt.Errorf("clear latest: %w", err)
	}

	ids := make([]uint, 0, len(idx))
	for _, id := range idx {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return idx, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := db.Model(&models.Stance{}).Where("poll_id = ? AND id IN ?", pollID, ids).Update("latest", true)
	if res.Error != nil {
		return nil, fmt.Errorf("set latest: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return nil, apperrors.Inconsistent("set %d latest stances, expected %d", res.RowsAffected, len(ids))
	}
	return idx, nil
}

// LatestStances returns the latest non-revoked stances with their choices.
func (l *Ledger) LatestStances(ctx context.Context, pollID uint) ([]models.Stance, error) {
	var stances []models.Stance
	err := l.latest(ctx, pollID).
		Preload("Choices").
		Order("stances.participant_id").
		Find(&stances).Error
	return stances, err
}

// LatestHolders satisfies eligibility.StanceSource.
func (l *Ledger) LatestHolders(ctx context.Context, pollID uint) ([]eligibility.StanceHolder, error) {
	var holders []eligibility.StanceHolder
	err := l.db.WithContext(ctx).Model(&models.Stance{}).
		Select("participant_id, admin, revoked_at").
		Where("poll_id = ? AND latest = ?", pollID, true).
		Scan(&holders).Error
	return holders, err
}

const hasChoice = "EXISTS (SELECT 1 FROM stance_choices WHERE stance_choices.stance_id = stances.id)"

// DecidedCount counts latest stances that carry at least one choice.
func (l *Ledger) DecidedCount(ctx context.Context, pollID uint) (int64, error) {
	var n int64
	err := l.latest(ctx, pollID).Where(hasChoice).Count(&n).Error
	return n, err
}

// UndecidedCount counts latest stances without any choice.
func (l *Ledger) UndecidedCount(ctx context.Context, pollID uint) (int64, error) {
	var n int64
	err := l.latest(ctx, pollID).Where("NOT " + hasChoice).Count(&n).Error
	return n, err
}

// Invite creates undecided stances for participants who have none, marking
// them admin when asked. An existing latest stance is promoted to admin
// instead of duplicated.
func (l *Ledger) Invite(ctx context.Context, pollID uint, participantIDs []uint, inviterID uint, admin bool) ([]models.Stance, error) {
	db := l.db.WithContext(ctx)
	var created []models.Stance
	for _, pid := range participantIDs {
		cur, err := l.CurrentStance(ctx, pollID, pid)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			if admin && !cur.Admin {
				if err := db.Model(&models.Stance{}).Where("id = ?", cur.ID).Update("admin", true).Error; err != nil {
					return nil, fmt.Errorf("promote stance %d: %w", cur.ID, err)
				}
			}
			continue
		}
		inviter := inviterID
		s := models.Stance{
			PollID:        pollID,
			ParticipantID: pid,
			InviterID:     &inviter,
			Admin:         admin,
			CreatedAt:     l.now(),
		}
		if err := db.Create(&s).Error; err != nil {
			return nil, fmt.Errorf("invite participant %d: %w", pid, err)
		}
		created = append(created, s)
	}
	return created, nil
}

// Revoke marks every stance of participantID on pollID as revoked.
func (l *Ledger) Revoke(ctx context.Context, pollID, participantID uint) (int64, error) {
	res := l.db.WithContext(ctx).Model(&models.Stance{}).
		Where("poll_id = ? AND participant_id = ? AND revoked_at IS NULL", pollID, participantID).
		Update("revoked_at", l.now())
	return res.RowsAffected, res.Error
}

// Counts is the derived counter state written by RefreshCounts.
type Counts struct {
	StanceCounts         []float64
	VotersCount          int
	UndecidedVotersCount int
}

// RefreshCounts recomputes option totals and the poll's denormalized
// counters from the latest stances. It is idempotent.
func (l *Ledger) RefreshCounts(ctx context.Context, pollID uint) (Counts, error) {
	db := l.db.WithContext(ctx)

	var totals []struct {
		PollOptionID uint
		TotalScore   float64
		VoterCount   int
	}
	if err := db.Table("stance_choices").
		Select("stance_choices.poll_option_id, SUM(stance_choices.score) AS total_score, COUNT(DISTINCT stances.participant_id) AS voter_count").
		Joins("JOIN stances ON stances.id = stance_choices.stance_id").
		Where("stances.poll_id = ? AND stances.latest = ? AND stances.revoked_at IS NULL", pollID, true).
		Group("stance_choices.poll_option_id").
		Scan(&totals).Error; err != nil {
		return Counts{}, fmt.Errorf("aggregate choices: %w", err)
	}
	byOption := make(map[uint]int, len(totals))
	for i, t := range totals {
		byOption[t.PollOptionID] = i
	}

	var options []models.PollOption
	if err := db.Where("poll_id = ?", pollID).Order("priority").Find(&options).Error; err != nil {
		return Counts{}, fmt.Errorf("load options: %w", err)
	}

	counts := Counts{StanceCounts: make([]float64, len(options))}
	for i, o := range options {
		var score float64
		var voters int
		if j, ok := byOption[o.ID]; ok {
			score, voters = totals[j].TotalScore, totals[j].VoterCount
		}
		counts.StanceCounts[i] = score
		if err := db.Model(&models.PollOption{}).Where("id = ?", o.ID).
			Updates(map[string]interface{}{"total_score": score, "voter_count": voters}).Error; err != nil {
			return Counts{}, fmt.Errorf("update option %d: %w", o.ID, err)
		}
	}

	var voters, undecided int64
	if err := l.latest(ctx, pollID).Count(&voters).Error; err != nil {
		return Counts{}, err
	}
	if err := l.latest(ctx, pollID).Where("NOT " + hasChoice).Count(&undecided).Error; err != nil {
		return Counts{}, err
	}
	counts.VotersCount = int(voters)
	counts.UndecidedVotersCount = int(undecided)

	if err := db.Model(&models.Poll{}).Where("id = ?", pollID).Updates(map[string]interface{}{
		"stance_counts":          datatypes.JSONSlice[float64](counts.StanceCounts),
		"voters_count":           counts.VotersCount,
		"undecided_voters_count": counts.UndecidedVotersCount,
	}).Error; err != nil {
		return Counts{}, fmt.Errorf("update poll counters: %w", err)
	}
	return counts, nil
}
