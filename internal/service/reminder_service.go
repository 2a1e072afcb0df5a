package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/store"
	"todo-planner/internal/view"
)

// reminderWindow is how late a reminder may still fire after its notify time.
const reminderWindow = 20 * time.Second

// DailyTagPrefix marks daily report notifications. Their body is HTML.
const DailyTagPrefix = "daily-"

// Permission is the notifier's delivery permission.
type Permission int

const (
	PermissionUnsupported Permission = iota
	PermissionDenied
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unsupported"
	}
}

// Notification is one reminder. Tag identifies the task so a sink can
// collapse duplicates.
type Notification struct {
	Title string
	Body  string
	Tag   string
}

// Notifier delivers reminders and reports.
type Notifier interface {
	Permission(ctx context.Context) Permission
	Notify(ctx context.Context, n Notification) error
}

// ReminderService fires due reminders and builds daily summaries.
type ReminderService struct {
	store    *store.Store
	notifier Notifier
	clock    clock.Clock
	log      *zap.Logger

	tickMu sync.Mutex
}

func NewReminderService(st *store.Store, notifier Notifier, clk clock.Clock, log *zap.Logger) *ReminderService {
	return &ReminderService{store: st, notifier: notifier, clock: clk, log: log}
}

// Tick fires every reminder that became due within the last reminderWindow
// and latches it so it never fires again. It returns how many were sent.
func (s *ReminderService) Tick(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.notifier.Permission(ctx) != PermissionGranted {
		return 0, nil
	}

	now := s.clock.Now()
	var fired []string
	for _, t := range s.store.Snapshot() {
		due, ok := reminderDue(t, now)
		if !ok {
			continue
		}
		n := Notification{
			Title: t.Title,
			Body:  strings.TrimSpace(clock.FormatDisplay(due) + " " + t.Time),
			Tag:   t.ID,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn("reminder not delivered", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		fired = append(fired, t.ID)
	}
	if len(fired) == 0 {
		return 0, nil
	}

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		for _, id := range fired {
			if t := tx.Find(id); t != nil {
				t.Notified = true
			}
		}
		return nil
	})
	if err != nil {
		return len(fired), fmt.Errorf("latch reminders: %w", err)
	}
	s.log.Info("reminders sent", zap.Int("count", len(fired)))
	return len(fired), nil
}

// reminderDue reports whether t should be reminded at now and returns its due instant.
func reminderDue(t model.Task, now time.Time) (time.Time, bool) {
	if !t.Visible() || t.Done || !t.NotifyEnabled || t.Notified {
		return time.Time{}, false
	}
	due, ok := clock.ParseDue(t.Date, t.Time, now.Location())
	if !ok {
		return time.Time{}, false
	}
	notifyAt := due.Add(-time.Duration(t.NotifyMinutesBefore) * time.Minute)
	if now.Before(notifyAt) || now.Sub(notifyAt) > reminderWindow {
		return time.Time{}, false
	}
	return due, true
}

// SendDailySummary delivers DailySummary through the notifier.
func (s *ReminderService) SendDailySummary(ctx context.Context) error {
	if s.notifier.Permission(ctx) != PermissionGranted {
		return nil
	}
	now := s.clock.Now()
	return s.notifier.Notify(ctx, Notification{
		Title: "Daily report",
		Body:  DailySummary(s.store.Snapshot(), now),
		Tag:   DailyTagPrefix + clock.DayKey(now),
	})
}

// Summary renders the daily report for the current moment.
func (s *ReminderService) Summary() string {
	return DailySummary(s.store.Snapshot(), s.clock.Now())
}

// DailySummary renders the dashboard counts, overdue tasks and the agenda as
// Telegram HTML.
func DailySummary(tasks []model.Task, now time.Time) string {
	counts := view.Count(tasks, now)
	overdue := view.Project(tasks, view.Query{Filter: view.FilterOverdue, Sort: view.SortDueAsc}, now)

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", clock.FormatDisplay(now)))
	builder.WriteString(fmt.Sprintf("📊 total %d · done %d · today %d · overdue %d\n\n",
		counts.Total, counts.Done, counts.Today, counts.Overdue))

	if len(overdue) > 0 {
		builder.WriteString("⚠️ <b>Overdue</b>\n")
		for _, t := range overdue {
			builder.WriteString(formatTask(t, true))
		}
		builder.WriteByte('\n')
	}

	for i, day := range view.Agenda(tasks, now) {
		if i > 0 && len(day.Tasks) == 0 {
			continue
		}
		if i == 0 {
			builder.WriteString("🔥 <b>Today</b>\n")
		} else {
			builder.WriteString(fmt.Sprintf("📆 <b>%s</b>\n", clock.FormatDisplay(day.Date)))
		}
		if len(day.Tasks) == 0 {
			builder.WriteString("— nothing planned\n")
		}
		for _, t := range day.Tasks {
			builder.WriteString(formatTask(t, false))
		}
		builder.WriteByte('\n')
	}

	return strings.TrimSpace(builder.String())
}

func formatTask(t model.Task, withDate bool) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case t.Done:
		icon = "✅"
	case t.Priority == model.PriorityHigh:
		icon = "🔴"
	case t.IsInstance:
		icon = "♻️"
	}

	sb.WriteString(icon + " ")
	if withDate && t.Date != "" {
		sb.WriteString(t.Date + " ")
	}
	if t.Time != "" {
		sb.WriteString(t.Time + " ")
	}
	sb.WriteString(html.EscapeString(strings.TrimSpace(t.Title)))

	if c := strings.TrimSpace(t.Category); c != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(c)))
	}
	if t.Notes != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(t.Notes)))
	}

	sb.WriteByte('\n')
	return sb.String()
}
