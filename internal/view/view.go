// Package view filters, searches and sorts the visible task list for display.
package view

import (
	"sort"
	"strings"
	"time"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
)

// Status is the derived state of a visible task at a given instant.
type Status string

const (
	StatusDone     Status = "done"
	StatusPlain    Status = "plain"
	StatusToday    Status = "today"
	StatusOverdue  Status = "overdue"
	StatusUpcoming Status = "upcoming"
)

// StatusOf derives the status of t at now. Tasks due later today are "today",
// not "upcoming"; tasks due earlier today are also "today".
func StatusOf(t model.Task, now time.Time) Status {
	if t.Done {
		return StatusDone
	}
	due, ok := clock.ParseDue(t.Date, t.Time, now.Location())
	if !ok {
		return StatusPlain
	}
	if clock.DayKey(due) == clock.DayKey(now) {
		return StatusToday
	}
	if due.Before(now) {
		return StatusOverdue
	}
	return StatusUpcoming
}

// Filter selects tasks by status.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterToday    Filter = "today"
	FilterUpcoming Filter = "upcoming"
	FilterOverdue  Filter = "overdue"
	FilterPlain    Filter = "plain"
	FilterDone     Filter = "done"
)

// ParseFilter falls back to FilterAll.
func ParseFilter(s string) Filter {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterToday, FilterUpcoming, FilterOverdue, FilterPlain, FilterDone:
		return f
	default:
		return FilterAll
	}
}

// SortMode orders the projected list.
type SortMode string

const (
	SortManual       SortMode = "manual"
	SortDueAsc       SortMode = "dueAsc"
	SortDueDesc      SortMode = "dueDesc"
	SortPriorityDesc SortMode = "priDesc"
	SortCreatedDesc  SortMode = "createdDesc"
)

// ParseSort falls back to SortDueAsc.
func ParseSort(s string) SortMode {
	for _, m := range []SortMode{SortManual, SortDueAsc, SortDueDesc, SortPriorityDesc, SortCreatedDesc} {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m
		}
	}
	return SortDueAsc
}

// Query describes one projection.
type Query struct {
	Filter Filter
	Search string
	Sort   SortMode
}

// Project returns the visible tasks matching q, sorted. Templates are never
// part of the result.
func Project(tasks []model.Task, q Query, now time.Time) []model.Task {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Visible() {
			continue
		}
		if needle != "" && !matches(t, needle) {
			continue
		}
		if !passes(t, q.Filter, now) {
			continue
		}
		out = append(out, t)
	}
	sortTasks(out, q.Sort, now.Location())
	return out
}

func matches(t model.Task, needle string) bool {
	return strings.Contains(strings.ToLower(t.Title), needle) ||
		strings.Contains(strings.ToLower(t.Category), needle) ||
		strings.Contains(strings.ToLower(t.Notes), needle)
}

func passes(t model.Task, f Filter, now time.Time) bool {
	switch f {
	case "", FilterAll:
		return true
	case FilterDone:
		return t.Done
	default:
		return StatusOf(t, now) == Status(f)
	}
}

// dueMillis is the sort key for due-based orders; undated tasks use createdAt.
func dueMillis(t model.Task, loc *time.Location) int64 {
	if due, ok := clock.ParseDue(t.Date, t.Time, loc); ok {
		return due.UnixMilli()
	}
	return t.CreatedAt
}

func sortTasks(tasks []model.Task, mode SortMode, loc *time.Location) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch mode {
		case SortManual:
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			return dueMillis(a, loc) < dueMillis(b, loc)
		case SortDueDesc:
			return dueMillis(a, loc) > dueMillis(b, loc)
		case SortPriorityDesc:
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return dueMillis(a, loc) < dueMillis(b, loc)
		case SortCreatedDesc:
			return a.CreatedAt > b.CreatedAt
		default:
			return dueMillis(a, loc) < dueMillis(b, loc)
		}
	})
}

// Counts are the dashboard numbers over visible tasks.
type Counts struct {
	Total   int
	Done    int
	Today   int
	Overdue int
}

// Count computes Counts. Today and Overdue only count open tasks.
func Count(tasks []model.Task, now time.Time) Counts {
	var c Counts
	for _, t := range tasks {
		if !t.Visible() {
			continue
		}
		c.Total++
		if t.Done {
			c.Done++
			continue
		}
		switch StatusOf(t, now) {
		case StatusToday:
			c.Today++
		case StatusOverdue:
			c.Overdue++
		}
	}
	return c
}

// Day is one column of the agenda.
type Day struct {
	Date  time.Time
	Key   string
	Tasks []model.Task
}

// AgendaDays is the number of days shown by Agenda, today included.
const AgendaDays = 7

// Agenda groups visible tasks dated within the next AgendaDays days. Tasks in
// a day are ordered by time, with untimed tasks last, then by priority.
func Agenda(tasks []model.Task, now time.Time) []Day {
	start := clock.StartOfDay(now)
	days := make([]Day, AgendaDays)
	index := make(map[string]int, AgendaDays)
	for i := range days {
		d := start.AddDate(0, 0, i)
		days[i] = Day{Date: d, Key: clock.DayKey(d)}
		index[days[i].Key] = i
	}

	for _, t := range tasks {
		if !t.Visible() {
			continue
		}
		if i, ok := index[t.Date]; ok {
			days[i].Tasks = append(days[i].Tasks, t)
		}
	}

	for i := range days {
		list := days[i].Tasks
		sort.SliceStable(list, func(a, b int) bool {
			ta, tb := timeOrEndOfDay(list[a].Time), timeOrEndOfDay(list[b].Time)
			if ta != tb {
				return ta < tb
			}
			return list[a].Priority > list[b].Priority
		})
	}
	return days
}

func timeOrEndOfDay(s string) string {
	if s == "" {
		return clock.EndOfDay
	}
	return s
}

// Templates returns active templates ordered by their manual order.
func Templates(tasks []model.Task) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.ActiveTemplate() {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
