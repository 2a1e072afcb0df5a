// Package recurrence materializes recurring templates into dated instances
// over a rolling horizon.
package recurrence

import (
	"time"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/store"
)

// HorizonDays is how far ahead of today instances are kept materialized.
const HorizonDays = 30

// Step advances t by one period of repeat. Monthly steps add one to the month
// field and let time.Date roll the day over, so Jan 31 becomes Mar 2 or Mar 3
// depending on the year. The wall clock time is kept.
func Step(t time.Time, repeat model.Repeat) time.Time {
	switch repeat {
	case model.RepeatDaily:
		return t.AddDate(0, 0, 1)
	case model.RepeatWeekly:
		return t.AddDate(0, 0, 7)
	case model.RepeatMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t
	}
}

// Occurrences lists the day keys tpl is scheduled on from today through the
// horizon, both inclusive. It returns nil for inactive or undated templates.
func Occurrences(tpl model.Task, now time.Time) []string {
	repeat := model.ParseRepeat(string(tpl.Repeat))
	if !tpl.IsTemplate || repeat == model.RepeatNone || tpl.Date == "" {
		return nil
	}

	loc := now.Location()
	start := clock.StartOfDay(now)
	horizonKey := clock.DayKey(start.AddDate(0, 0, HorizonDays))

	cursor, ok := clock.ParseDue(tpl.Date, tpl.Time, loc)
	if !ok {
		if cursor, ok = clock.ParseDay(tpl.Date, loc); !ok {
			return nil
		}
	}
	for cursor.Before(start) {
		cursor = Step(cursor, repeat)
	}

	var days []string
	for clock.DayKey(cursor) <= horizonKey {
		days = append(days, clock.DayKey(cursor))
		cursor = Step(cursor, repeat)
	}
	return days
}

type instanceKey struct {
	templateID string
	date       string
	time       string
}

// Materialize makes tx hold exactly one instance per scheduled occurrence of
// every active template between today and the horizon. Instances dated
// before today are kept as history. It returns the number of instances added.
func Materialize(tx *store.Tx) int {
	now := tx.Now()
	todayKey := clock.DayKey(now)

	var templates []model.Task
	for _, t := range tx.All() {
		if t.ActiveTemplate() && t.Date != "" {
			templates = append(templates, t)
		}
	}

	added := 0
	for _, tpl := range templates {
		// Regenerated occurrences keep the reminder latch so a reminder
		// never fires twice for the same slot.
		notified := make(map[instanceKey]bool)
		for _, t := range tx.All() {
			if t.IsInstance && t.ParentID == tpl.ID && t.Date >= todayKey && t.Notified {
				notified[instanceKey{t.ParentID, t.Date, t.Time}] = true
			}
		}
		tx.Remove(func(t model.Task) bool {
			return t.IsInstance && t.ParentID == tpl.ID && t.Date >= todayKey
		})

		existing := make(map[instanceKey]struct{})
		for _, t := range tx.All() {
			if t.ParentID == tpl.ID {
				existing[instanceKey{t.ParentID, t.Date, t.Time}] = struct{}{}
			}
		}

		for _, day := range Occurrences(tpl, now) {
			key := instanceKey{tpl.ID, day, tpl.Time}
			if _, ok := existing[key]; ok {
				continue
			}
			inst := newInstance(tpl, day)
			inst.Notified = notified[key]
			tx.Add(inst)
			existing[key] = struct{}{}
			added++
		}
	}
	return added
}

func newInstance(tpl model.Task, day string) model.Task {
	notify := tpl.NotifyMinutesBefore
	if notify < 0 {
		notify = model.DefaultNotifyMinutes
	}
	return model.Task{
		Title:               tpl.Title,
		Date:                day,
		Time:                tpl.Time,
		Priority:            tpl.Priority,
		Category:            tpl.Category,
		Notes:               tpl.Notes,
		Repeat:              model.RepeatNone,
		IsInstance:          true,
		ParentID:            tpl.ID,
		NotifyEnabled:       tpl.NotifyEnabled,
		NotifyMinutesBefore: notify,
	}
}

// DeleteTemplate removes a template together with all of its instances,
// past ones included, and reports how many records went.
func DeleteTemplate(tx *store.Tx, templateID string) int {
	return tx.Remove(func(t model.Task) bool {
		return t.ID == templateID || t.ParentID == templateID
	})
}

// DeleteInstances removes every instance of templateID.
func DeleteInstances(tx *store.Tx, templateID string) int {
	return tx.Remove(func(t model.Task) bool {
		return t.ParentID == templateID
	})
}
