// Package apperrors holds the error kinds surfaced by the poll core.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("consistency violation")
)

// Reason codes carried by ValidationError.
const (
	CodeClosesInPast          = "closes_in_past"
	CodeAlreadyClosed         = "already_closed"
	CodePollClosed            = "poll_closed"
	CodeCannotDeanonymize     = "cannot_deanonymize"
	CodeRevealResultsEarly    = "cannot_reveal_results_early"
	CodeDiscussionGroup       = "discussion_group_is_poll_group"
	CodeCannotAddOptions      = "cannot_add_options"
	CodeCannotRemoveOptions   = "cannot_remove_options"
	CodeMustHaveOptions       = "must_have_options"
	CodeUnknownPollType       = "unknown_poll_type"
	CodeRequiredCustomField   = "required_custom_field"
	CodeInvalidOption         = "invalid_option"
	CodeTooFewChoices         = "too_few_choices"
	CodeSingleChoice          = "single_choice"
	CodeScoreOutOfRange       = "score_out_of_range"
	CodeTooManyDots           = "too_many_dots"
	CodeInvalidRank           = "invalid_rank"
	CodeInvalidHideResults    = "invalid_hide_results"
	CodeInvalidNotifySetting  = "invalid_notify_on_closing_soon"
	CodeMinimumStanceChoices  = "invalid_minimum_stance_choices"
	CodeDiscussionNotFound    = "discussion_not_found"
	CodeParticipantNotInvited = "participant_not_invited"
)

// ValidationError is a recoverable, field-level rejection.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field with the given reason code.
func Invalid(field, code string) error {
	return &ValidationError{Field: field, Code: code}
}

// ConsistencyError signals a broken internal invariant. It must abort the
// enclosing transaction.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return "consistency violation: " + e.Detail
}

func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}

func Inconsistent(format string, args ...interface{}) error {
	return &ConsistencyError{Detail: fmt.Sprintf(format, args...)}
}

func NotFound(what string, id uint) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}

func Forbidden(actorID uint, action string) error {
	return fmt.Errorf("user %d may not %s: %w", actorID, action, ErrForbidden)
}

// HasCode reports whether err, or any error aggregated inside it, is a
// ValidationError with the given code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			if HasCode(e, code) {
				return true
			}
		}
		return false
	}
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Code == code
}

// Codes flattens every validation code found in err.
func Codes(err error) []string {
	if err == nil {
		return nil
	}
	if merr, ok := err.(*multierror.Error); ok {
		var out []string
		for _, e := range merr.Errors {
			out = append(out, Codes(e)...)
		}
		return out
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return []string{verr.Code}
	}
	return nil
}

// Collector aggregates validation failures so callers see all of them at once.
type Collector struct {
	merr *multierror.Error
}

func (c *Collector) Add(err error) {
	if err != nil {
		c.merr = multierror.Append(c.merr, err)
	}
}

func (c *Collector) Invalid(field, code string) {
	c.Add(Invalid(field, code))
}

// Err returns nil when nothing was collected, the single error when exactly
// one was, and the aggregate otherwise.
func (c *Collector) Err() error {
	if c.merr == nil {
		return nil
	}
	if len(c.merr.Errors) == 1 {
		return c.merr.Errors[0]
	}
	return c.merr
}
