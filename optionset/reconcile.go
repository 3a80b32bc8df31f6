// Package optionset maps a desired list of option names onto a poll's
// existing options.
package optionset

import (
	"sort"
	"strings"
	"time"

	"poll-decision-backend/models"
	"poll-decision-backend/templates"
)

// Result is the outcome of a reconciliation. Nothing is written until
// Store.Apply runs inside the caller's transaction.
type Result struct {
	// Options is the final ordered option list. Existing options keep their
	// ID; new ones have ID 0.
	Options []models.PollOption
	Added   []string
	Removed []models.PollOption
	// Reprioritized holds existing options whose priority changes.
	Reprioritized []models.PollOption
}

// Changed is false when applying the result would write nothing.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Reprioritized) > 0
}

func (r Result) Names() []string {
	names := make([]string, len(r.Options))
	for i, o := range r.Options {
		names[i] = o.Name
	}
	return names
}

// Reconcile computes added and removed names and assigns priorities by
// position. Templates that sort options override the caller's order.
func Reconcile(existing []models.PollOption, desired []string, tmpl templates.Template) Result {
	names := normalize(desired)
	if tmpl.SortOptions {
		sortNames(names)
	}

	byName := make(map[string]models.PollOption, len(existing))
	for _, o := range existing {
		byName[o.Name] = o
	}

	var res Result
	keep := make(map[string]bool, len(names))
	for i, name := range names {
		keep[name] = true
		opt, ok := byName[name]
		if !ok {
			res.Added = append(res.Added, name)
			opt = models.PollOption{PollID: pollIDOf(existing), Name: name}
		} else if opt.Priority != i {
			opt.Priority = i
			res.Reprioritized = append(res.Reprioritized, opt)
		}
		opt.Priority = i
		res.Options = append(res.Options, opt)
	}

	for _, o := range existing {
		if !keep[o.Name] {
			res.Removed = append(res.Removed, o)
		}
	}
	return res
}

// normalize trims names, drops blanks and keeps the first of any duplicates.
func normalize(desired []string) []string {
	seen := make(map[string]bool, len(desired))
	out := make([]string, 0, len(desired))
	for _, n := range desired {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// sortNames orders date-like names chronologically and anything else
// lexically, dates first.
func sortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ti, iok := parseTime(names[i])
		tj, jok := parseTime(names[j])
		switch {
		case iok && jok:
			if ti.Equal(tj) {
				return names[i] < names[j]
			}
			return ti.Before(tj)
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func pollIDOf(existing []models.PollOption) uint {
	if len(existing) == 0 {
		return 0
	}
	return existing[0].PollID
}
