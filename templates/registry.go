// Package templates is the static per-poll-type configuration table. Every
// type-dependent switch in the core reads from here.
package templates

import (
	"fmt"
	"sort"
)

const (
	Proposal     = "proposal"
	Poll         = "poll"
	Count        = "count"
	DotVote      = "dot_vote"
	Score        = "score"
	RankedChoice = "ranked_choice"
	Meeting      = "meeting"
)

// Chart columns drive which percentage an option result reports.
const (
	ColumnScorePercent    = "score_percent"
	ColumnVoterPercent    = "voter_percent"
	ColumnMaxScorePercent = "max_score_percent"
)

const (
	ChartPie  = "pie"
	ChartBar  = "bar"
	ChartGrid = "grid"
)

// Option name formats.
const (
	NameFormatI18n    = "i18n"
	NameFormatISO8601 = "iso8601"
	NameFormatNone    = "none"
)

// Template is the configuration record for one poll type.
type Template struct {
	PollType                    string   `json:"poll_type"`
	AllowsAddOptions            bool     `json:"allows_add_options"`
	AllowsRemoveOptions         bool     `json:"allows_remove_options"`
	RequiresOptions             bool     `json:"requires_options"`
	SingleChoice                bool     `json:"single_choice"`
	ChartColumn                 string   `json:"chart_column"`
	ChartType                   string   `json:"chart_type"`
	ResultColumns               []string `json:"result_columns"`
	NameFormat                  string   `json:"name_format"`
	VotersReviewResponses       bool     `json:"voters_review_responses"`
	MinimumStanceChoicesDefault int      `json:"minimum_stance_choices_default"`
	RequireStanceChoices        bool     `json:"require_stance_choices"`
	SortOptions                 bool     `json:"sort_options"`
	VariableScore               bool     `json:"variable_score"`
	BudgetedScore               bool     `json:"budgeted_score"`
	Ranked                      bool     `json:"ranked"`
	RespondMaybe                bool     `json:"respond_maybe"`
	ResultsIncludeUndecided     bool     `json:"results_include_undecided"`
	RequiredCustomFields        []string `json:"required_custom_fields"`
	DefaultOptions              []string `json:"default_options,omitempty"`
	DefaultMinScore             float64  `json:"default_min_score"`
	DefaultMaxScore             float64  `json:"default_max_score"`
}

// HasColumn reports whether the results table includes the named column.
func (t Template) HasColumn(name string) bool {
	for _, c := range t.ResultColumns {
		if c == name {
			return true
		}
	}
	return false
}

// UnknownTypeError is returned by Lookup for an unregistered poll type.
type UnknownTypeError struct {
	PollType string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown poll type %q", e.PollType)
}

// Registry is an immutable lookup table, passed explicitly to its users.
type Registry struct {
	byType map[string]Template
}

// NewRegistry copies the given templates into a registry.
func NewRegistry(tmpls ...Template) *Registry {
	r := &Registry{byType: make(map[string]Template, len(tmpls))}
	for _, t := range tmpls {
		r.byType[t.PollType] = t
	}
	return r
}

func (r *Registry) Lookup(pollType string) (Template, error) {
	t, ok := r.byType[pollType]
	if !ok {
		return Template{}, &UnknownTypeError{PollType: pollType}
	}
	return t, nil
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for k := range r.byType {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Default returns the built-in table of poll types.
func Default() *Registry {
	return NewRegistry(
		Template{
			PollType:                    Proposal,
			RequiresOptions:             true,
			SingleChoice:                true,
			ChartColumn:                 ColumnScorePercent,
			ChartType:                   ChartPie,
			ResultColumns:               []string{"chart", "name", "score_percent", "voter_count", "voters"},
			NameFormat:                  NameFormatI18n,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			ResultsIncludeUndecided:     true,
			DefaultOptions:              []string{"agree", "abstain", "disagree", "block"},
			DefaultMaxScore:             1,
		},
		Template{
			PollType:                    Count,
			RequiresOptions:             true,
			SingleChoice:                true,
			ChartColumn:                 ColumnVoterPercent,
			ChartType:                   ChartBar,
			ResultColumns:               []string{"chart", "name", "voter_percent", "voter_count", "voters"},
			NameFormat:                  NameFormatI18n,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			ResultsIncludeUndecided:     true,
			DefaultOptions:              []string{"yes", "no"},
			DefaultMaxScore:             1,
		},
		Template{
			PollType:                    Poll,
			AllowsAddOptions:            true,
			AllowsRemoveOptions:         true,
			RequiresOptions:             true,
			SingleChoice:                true,
			ChartColumn:                 ColumnMaxScorePercent,
			ChartType:                   ChartBar,
			ResultColumns:               []string{"chart", "name", "score_percent", "voter_count", "voters"},
			NameFormat:                  NameFormatNone,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			ResultsIncludeUndecided:     true,
			DefaultMaxScore:             1,
		},
		Template{
			PollType:                    DotVote,
			AllowsAddOptions:            true,
			AllowsRemoveOptions:         true,
			RequiresOptions:             true,
			ChartColumn:                 ColumnMaxScorePercent,
			ChartType:                   ChartBar,
			ResultColumns:               []string{"chart", "name", "score_percent", "score", "average", "voter_count", "voters"},
			NameFormat:                  NameFormatNone,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			VariableScore:               true,
			BudgetedScore:               true,
			ResultsIncludeUndecided:     true,
			RequiredCustomFields:        []string{"dots_per_person"},
			DefaultMinScore:             0,
			DefaultMaxScore:             8,
		},
		Template{
			PollType:                    Score,
			AllowsAddOptions:            true,
			AllowsRemoveOptions:         true,
			RequiresOptions:             true,
			ChartColumn:                 ColumnMaxScorePercent,
			ChartType:                   ChartBar,
			ResultColumns:               []string{"chart", "name", "score", "average", "voter_count", "voters"},
			NameFormat:                  NameFormatNone,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			VariableScore:               true,
			ResultsIncludeUndecided:     true,
			RequiredCustomFields:        []string{"max_score"},
			DefaultMinScore:             0,
			DefaultMaxScore:             9,
		},
		Template{
			PollType:                    RankedChoice,
			AllowsAddOptions:            true,
			AllowsRemoveOptions:         true,
			RequiresOptions:             true,
			ChartColumn:                 ColumnMaxScorePercent,
			ChartType:                   ChartBar,
			ResultColumns:               []string{"chart", "name", "rank", "score_percent", "score", "average"},
			NameFormat:                  NameFormatNone,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        true,
			Ranked:                      true,
			ResultsIncludeUndecided:     true,
			RequiredCustomFields:        []string{"minimum_stance_choices"},
		},
		Template{
			PollType:                    Meeting,
			AllowsAddOptions:            true,
			AllowsRemoveOptions:         true,
			RequiresOptions:             true,
			ChartColumn:                 ColumnMaxScorePercent,
			ChartType:                   ChartGrid,
			ResultColumns:               []string{"chart", "name", "score", "voters"},
			NameFormat:                  NameFormatISO8601,
			VotersReviewResponses:       true,
			MinimumStanceChoicesDefault: 1,
			RequireStanceChoices:        false,
			SortOptions:                 true,
			VariableScore:               true,
			RespondMaybe:                true,
			ResultsIncludeUndecided:     false,
			DefaultMinScore:             0,
			DefaultMaxScore:             2,
		},
	)
}
