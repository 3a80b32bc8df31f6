package ledger

import (
	"poll-decision-backend/apperrors"
	"poll-decision-backend/models"
	"poll-decision-backend/templates"
)

// ChoiceInput is one requested choice. Score is optional; Rank is only read
// for ranked templates.
type ChoiceInput struct {
	PollOptionID uint     `json:"poll_option_id"`
	Score        *float64 `json:"score,omitempty"`
	Rank         int      `json:"rank,omitempty"`
}

// MinimumChoices is the number of distinct options a stance must pick,
// clamped to the number of options available.
func MinimumChoices(poll *models.Poll, tmpl templates.Template, optionCount int) int {
	if !tmpl.RequireStanceChoices {
		return 0
	}
	min := poll.CustomInt(models.FieldMinimumStanceChoices, tmpl.MinimumStanceChoicesDefault)
	if min > optionCount {
		min = optionCount
	}
	if min < 0 {
		min = 0
	}
	return min
}

// IsSingleVote is true when at most one option may be chosen.
func IsSingleVote(poll *models.Poll, tmpl templates.Template) bool {
	return tmpl.SingleChoice && !poll.MultipleChoice
}

// ValidateChoices checks in against the poll's options and template rules
// and returns the choices to store. Duplicate references to one option keep
// the first.
func ValidateChoices(poll *models.Poll, tmpl templates.Template, options []models.PollOption, in []ChoiceInput) ([]models.StanceChoice, error) {
	var errs apperrors.Collector

	known := make(map[uint]bool, len(options))
	for _, o := range options {
		known[o.ID] = true
	}

	seen := make(map[uint]bool, len(in))
	picked := make([]ChoiceInput, 0, len(in))
	for _, c := range in {
		if !known[c.PollOptionID] {
			errs.Invalid("stance_choices", apperrors.CodeInvalidOption)
			continue
		}
		if seen[c.PollOptionID] {
			continue
		}
		seen[c.PollOptionID] = true
		picked = append(picked, c)
	}

	if IsSingleVote(poll, tmpl) && len(picked) > 1 {
		errs.Invalid("stance_choices", apperrors.CodeSingleChoice)
	}
	if len(picked) < MinimumChoices(poll, tmpl, len(options)) {
		errs.Invalid("stance_choices", apperrors.CodeTooFewChoices)
	}

	out := make([]models.StanceChoice, 0, len(picked))
	switch {
	case tmpl.Ranked:
		ranks := make(map[int]bool, len(picked))
		for _, c := range picked {
			if c.Rank < 1 || c.Rank > len(picked) || ranks[c.Rank] {
				errs.Invalid("stance_choices", apperrors.CodeInvalidRank)
				break
			}
			ranks[c.Rank] = true
			// Borda weight: first place earns one point per option.
			out = append(out, models.StanceChoice{
				PollOptionID: c.PollOptionID,
				Rank:         c.Rank,
				Score:        float64(len(options) - c.Rank + 1),
			})
		}
	case tmpl.VariableScore:
		min := poll.CustomFloat(models.FieldMinScore, tmpl.DefaultMinScore)
		max := poll.CustomFloat(models.FieldMaxScore, tmpl.DefaultMaxScore)
		if tmpl.BudgetedScore {
			max = float64(poll.CustomInt(models.FieldDotsPerPerson, int(tmpl.DefaultMaxScore)))
		}
		// Scores between the extremes mean "maybe" on templates that
		// offer it, and the poll may switch that answer off.
		noMaybe := tmpl.RespondMaybe && !poll.CustomBool(models.FieldCanRespondMaybe, true)
		var total float64
		for _, c := range picked {
			score := 1.0
			if c.Score != nil {
				score = *c.Score
			}
			if score < min || score > max || (noMaybe && score > min && score < max) {
				errs.Invalid("stance_choices", apperrors.CodeScoreOutOfRange)
				break
			}
			total += score
			out = append(out, models.StanceChoice{PollOptionID: c.PollOptionID, Score: score})
		}
		if tmpl.BudgetedScore && total > max {
			errs.Invalid("stance_choices", apperrors.CodeTooManyDots)
		}
	default:
		for _, c := range picked {
			out = append(out, models.StanceChoice{PollOptionID: c.PollOptionID, Score: 1})
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
