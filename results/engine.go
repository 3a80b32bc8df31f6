// Package results turns latest stances into the per-option summary a poll's
// template asks for.
package results

import (
	"sort"

	"poll-decision-backend/models"
	"poll-decision-backend/templates"
)

// OptionResult is one row of the results table.
type OptionResult struct {
	ID              uint    `json:"id"`
	Name            string  `json:"name"`
	NameFormat      string  `json:"name_format"`
	Priority        int     `json:"priority"`
	Score           float64 `json:"score"`
	VoterCount      int     `json:"voter_count"`
	ScorePercent    float64 `json:"score_percent"`
	VoterPercent    float64 `json:"voter_percent"`
	MaxScorePercent float64 `json:"max_score_percent"`
	Percent         float64 `json:"percent"`
	Average         float64 `json:"average"`
	Rank            int     `json:"rank,omitempty"`
	AverageRank     float64 `json:"average_rank,omitempty"`
	VoterIDs        []uint  `json:"voter_ids,omitempty"`
}

// Undecided is the row for voters who hold a stance without choices.
type Undecided struct {
	VoterCount int    `json:"voter_count"`
	VoterIDs   []uint `json:"voter_ids,omitempty"`
}

// Results is the full summary for one poll.
type Results struct {
	PollID         uint           `json:"poll_id"`
	PollType       string         `json:"poll_type"`
	ChartType      string         `json:"chart_type"`
	ChartColumn    string         `json:"chart_column"`
	Columns        []string       `json:"columns"`
	Anonymous      bool           `json:"anonymous"`
	Closed         bool           `json:"closed"`
	TotalScore     float64        `json:"total_score"`
	VotersCount    int            `json:"voters_count"`
	DecidedCount   int            `json:"decided_count"`
	UndecidedCount int            `json:"undecided_count"`
	Options        []OptionResult `json:"options"`
	Undecided      *Undecided     `json:"undecided,omitempty"`
}

// Engine computes results. All type-dependent choices come from the registry.
type Engine struct {
	templates *templates.Registry
}

func NewEngine(reg *templates.Registry) *Engine {
	return &Engine{templates: reg}
}

type tally struct {
	score    float64
	voters   map[uint]struct{}
	rankSum  int
	rankSeen int
}

// Compute aggregates stances, which must be the poll's latest non-revoked
// stances with choices loaded, over options in priority order.
func (e *Engine) Compute(poll *models.Poll, options []models.PollOption, stances []models.Stance) (*Results, error) {
	tmpl, err := e.templates.Lookup(poll.PollType)
	if err != nil {
		return nil, err
	}

	tallies := make(map[uint]*tally, len(options))
	for _, o := range options {
		tallies[o.ID] = &tally{voters: map[uint]struct{}{}}
	}

	res := &Results{
		PollID:      poll.ID,
		PollType:    poll.PollType,
		ChartType:   tmpl.ChartType,
		ChartColumn: tmpl.ChartColumn,
		Columns:     append([]string(nil), tmpl.ResultColumns...),
		Anonymous:   poll.Anonymous,
		Closed:      poll.IsClosed(),
	}

	var undecided []uint
	for _, s := range stances {
		if s.Revoked() {
			continue
		}
		res.VotersCount++
		if len(s.Choices) == 0 {
			undecided = append(undecided, s.ParticipantID)
			continue
		}
		res.DecidedCount++
		for _, c := range s.Choices {
			t, ok := tallies[c.PollOptionID]
			if !ok {
				continue
			}
			t.score += c.Score
			t.voters[s.ParticipantID] = struct{}{}
			if c.Rank > 0 {
				t.rankSum += c.Rank
				t.rankSeen++
			}
		}
	}
	res.UndecidedCount = len(undecided)

	var maxScore float64
	for _, o := range options {
		t := tallies[o.ID]
		res.TotalScore += t.score
		if t.score > maxScore {
			maxScore = t.score
		}
	}

	for _, o := range options {
		t := tallies[o.ID]
		row := OptionResult{
			ID:              o.ID,
			Name:            o.Name,
			NameFormat:      tmpl.NameFormat,
			Priority:        o.Priority,
			Score:           t.score,
			VoterCount:      len(t.voters),
			ScorePercent:    percent(t.score, res.TotalScore),
			VoterPercent:    percent(float64(len(t.voters)), float64(res.VotersCount)),
			MaxScorePercent: percent(t.score, maxScore),
		}
		if row.VoterCount > 0 {
			row.Average = t.score / float64(row.VoterCount)
		}
		if tmpl.Ranked && t.rankSeen > 0 {
			row.AverageRank = float64(t.rankSum) / float64(t.rankSeen)
		}
		switch tmpl.ChartColumn {
		case templates.ColumnScorePercent:
			row.Percent = row.ScorePercent
		case templates.ColumnVoterPercent:
			row.Percent = row.VoterPercent
		default:
			row.Percent = row.MaxScorePercent
		}
		if !poll.Anonymous {
			row.VoterIDs = sortedIDs(t.voters)
		}
		res.Options = append(res.Options, row)
	}

	if tmpl.Ranked {
		assignRanks(res.Options)
	}

	if tmpl.ResultsIncludeUndecided {
		u := &Undecided{VoterCount: len(undecided)}
		if !poll.Anonymous {
			sort.Slice(undecided, func(i, j int) bool { return undecided[i] < undecided[j] })
			u.VoterIDs = undecided
		}
		res.Undecided = u
	}
	return res, nil
}

// assignRanks numbers options by descending score. Ties share a rank.
func assignRanks(rows []OptionResult) {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].Score > rows[order[b]].Score
	})
	for pos, i := range order {
		if pos > 0 && rows[i].Score == rows[order[pos-1]].Score {
			rows[i].Rank = rows[order[pos-1]].Rank
			continue
		}
		rows[i].Rank = pos + 1
	}
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

func sortedIDs(set map[uint]struct{}) []uint {
	if len(set) == 0 {
		return nil
	}
	out := make([]uint, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
