package report

import (
	"strings"
	"time"
)

// Category is the keyword-derived kind of a calendar entry.
type Category string

const (
	CategoryTraining Category = "training"
	CategoryDemo     Category = "demo"
	CategoryReseller Category = "reseller"
	CategoryOther    Category = "other"
)

var categoryKeywords = map[Category][]string{
	CategoryTraining: {"formation", "training"},
	CategoryDemo:     {"démo", "demo"},
	CategoryReseller: {"revendeur", "reseller"},
}

// Classify derives the category of an event from its summary.
func Classify(summary string) Category {
	lower := strings.ToLower(summary)
	for _, cat := range []Category{CategoryTraining, CategoryDemo, CategoryReseller} {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}
	return CategoryOther
}

// Thresholds are the fullness rules. They are preserved as configuration
// constants; the defaults match the historical business rules.
type Thresholds struct {
	MaxTrainings   int // day is full at this many trainings
	MaxDemos       int // ... or this many demos
	ComboDemos     int // ... or this many demos combined with
	ComboTrainings int // this many trainings
}

// DefaultThresholds returns the historical fullness rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTrainings:   4,
		MaxDemos:       2,
		ComboDemos:     1,
		ComboTrainings: 2,
	}
}

// IsFull reports whether a day can take no further appointment.
func (t Thresholds) IsFull(counts map[Category]int, hasAllDay bool) bool {
	if hasAllDay {
		return true
	}
	if counts[CategoryTraining] >= t.MaxTrainings {
		return true
	}
	if counts[CategoryDemo] >= t.MaxDemos {
		return true
	}
	return counts[CategoryDemo] >= t.ComboDemos && counts[CategoryTraining] >= t.ComboTrainings
}

// Band is a fixed time-of-day range reserved for administrative work.
type Band struct {
	Label string
	Start time.Duration // offset from local midnight
	End   time.Duration
}

// SuggestionKind discriminates the per-day proposal.
type SuggestionKind string

const (
	SuggestReseller SuggestionKind = "reseller"
	SuggestAdmin    SuggestionKind = "admin"
	SuggestNone     SuggestionKind = "none"
)

// Suggestion is the single proposal attached to an open day.
type Suggestion struct {
	Kind SuggestionKind

	// Kind == SuggestReseller
	ResellerName string
	Start        time.Time
	End          time.Time
	TravelIn     int
	TravelOut    int

	// Kind == SuggestAdmin
	BandLabel string

	// Kind == SuggestNone
	Reason string
}

// Item is the per-day classification result.
type Item struct {
	Date       time.Time
	Counts     map[Category]int
	EventCount int
	IsFull     bool
	Suggestion *Suggestion // absent when IsFull
	Notes      []string
}
