package model

import "strings"

// Repeat is the recurrence rule of a template.
type Repeat string

const (
	RepeatNone    Repeat = "none"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// ParseRepeat coerces unknown values to RepeatNone.
func ParseRepeat(s string) Repeat {
	switch r := Repeat(strings.ToLower(strings.TrimSpace(s))); r {
	case RepeatDaily, RepeatWeekly, RepeatMonthly:
		return r
	default:
		return RepeatNone
	}
}

// Valid reports whether r is one of the four known rules.
func (r Repeat) Valid() bool {
	return r == RepeatNone || r == RepeatDaily || r == RepeatWeekly || r == RepeatMonthly
}

// Priority orders tasks by urgency. Stored as 0..2 for compatibility with existing blobs.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// ParsePriority accepts names and numeric strings; anything else is normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return PriorityLow
	case "high", "2":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// DefaultNotifyMinutes is used when a record does not carry a reminder offset.
const DefaultNotifyMinutes = 5

// UntitledTitle replaces blank titles coming from imports.
const UntitledTitle = "untitled"

// Task is the single record of the planner: a standalone task, a recurrence
// template, or an instance materialized from a template.
type Task struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Date                string   `json:"date"`
	Time                string   `json:"time"`
	Priority            Priority `json:"priority"`
	Category            string   `json:"category"`
	Notes               string   `json:"notes"`
	Repeat              Repeat   `json:"repeat"`
	IsTemplate          bool     `json:"template"`
	IsInstance          bool     `json:"instance"`
	ParentID            string   `json:"parentId"`
	NotifyEnabled       bool     `json:"notifyEnabled"`
	NotifyMinutesBefore int      `json:"notifyMins"`
	Notified            bool     `json:"notified"`
	ExternalTaskID      string   `json:"googleTaskId,omitempty"`
	Order               int      `json:"order"`
	Done                bool     `json:"done"`
	CreatedAt           int64    `json:"createdAt"`
	UpdatedAt           int64    `json:"updatedAt"`
}

// Visible reports whether the record shows up in lists, counts and sync payloads.
// Templates never do.
func (t Task) Visible() bool {
	return !t.IsTemplate
}

// ActiveTemplate reports whether the record is a template that should be expanded.
func (t Task) ActiveTemplate() bool {
	return t.IsTemplate && ParseRepeat(string(t.Repeat)) != RepeatNone
}
