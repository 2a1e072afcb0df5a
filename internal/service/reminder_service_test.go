package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/model"
)

type fakeNotifier struct {
	perm Permission
	sent []Notification
	err  error
}

func (n *fakeNotifier) Permission(context.Context) Permission { return n.perm }

func (n *fakeNotifier) Notify(_ context.Context, msg Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func reminderTask() model.Task {
	return model.Task{
		Title:               "dentist",
		Date:                "2024-01-15",
		Time:                "10:00",
		NotifyEnabled:       true,
		NotifyMinutesBefore: 5,
	}
}

func TestReminderFiresOnceInsideWindow(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 15, 9, 55, 10, 0, time.UTC))
	task := f.seed(t, reminderTask())[0]
	notifier := &fakeNotifier{perm: PermissionGranted}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())
	ctx := context.Background()

	n, err := svc.Tick(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Tick = %d, %v", n, err)
	}
	if notifier.sent[0].Tag != task.ID || notifier.sent[0].Title != "dentist" {
		t.Errorf("sent = %+v", notifier.sent[0])
	}
	if !strings.Contains(notifier.sent[0].Body, "2024.01.15(Mon) 10:00") {
		t.Errorf("body = %q", notifier.sent[0].Body)
	}
	if !f.get(t, task.ID).Notified {
		t.Error("latch not set")
	}

	f.clock.Set(f.clock.Now().Add(5 * time.Second))
	if n, _ := svc.Tick(ctx); n != 0 {
		t.Errorf("second tick fired %d", n)
	}
}

func TestReminderWindowEdges(t *testing.T) {
	notifyAt := time.Date(2024, 1, 15, 9, 55, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"just before", notifyAt.Add(-time.Second), 0},
		{"exactly at", notifyAt, 1},
		{"20s late", notifyAt.Add(20 * time.Second), 1},
		{"21s late", notifyAt.Add(21 * time.Second), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now)
			f.seed(t, reminderTask())
			svc := NewReminderService(f.store, &fakeNotifier{perm: PermissionGranted}, f.clock, zap.NewNop())
			if n, _ := svc.Tick(context.Background()); n != tt.want {
				t.Errorf("fired = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestReminderSkips(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 55, 5, 0, time.UTC)
	done := reminderTask()
	done.Done = true
	disabled := reminderTask()
	disabled.NotifyEnabled = false
	latched := reminderTask()
	latched.Notified = true
	template := reminderTask()
	template.IsTemplate = true
	template.Repeat = model.RepeatDaily
	undated := reminderTask()
	undated.Date = ""

	f := newFixture(t, now)
	f.seed(t, done, disabled, latched, template, undated)
	notifier := &fakeNotifier{perm: PermissionGranted}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())
	if n, _ := svc.Tick(context.Background()); n != 0 {
		t.Errorf("fired = %d, want 0 (%+v)", n, notifier.sent)
	}
}

func TestReminderNeedsPermission(t *testing.T) {
	for _, perm := range []Permission{PermissionDenied, PermissionUnsupported} {
		f := newFixture(t, time.Date(2024, 1, 15, 9, 55, 5, 0, time.UTC))
		task := f.seed(t, reminderTask())[0]
		svc := NewReminderService(f.store, &fakeNotifier{perm: perm}, f.clock, zap.NewNop())
		if n, _ := svc.Tick(context.Background()); n != 0 {
			t.Errorf("%s: fired %d", perm, n)
		}
		if f.get(t, task.ID).Notified {
			t.Errorf("%s: latch set without delivery", perm)
		}
	}
}

func TestReminderFailedDeliveryIsNotLatched(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 15, 9, 55, 5, 0, time.UTC))
	task := f.seed(t, reminderTask())[0]
	notifier := &fakeNotifier{perm: PermissionGranted, err: errors.New("telegram down")}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())
	if n, err := svc.Tick(context.Background()); n != 0 || err != nil {
		t.Fatalf("Tick = %d, %v", n, err)
	}
	if f.get(t, task.ID).Notified {
		t.Error("undelivered reminder latched")
	}
}

func TestEditReArmsReminder(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 15, 9, 55, 5, 0, time.UTC))
	task := f.seed(t, reminderTask())[0]
	notifier := &fakeNotifier{perm: PermissionGranted}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())
	ctx := context.Background()
	_, _ = svc.Tick(ctx)

	_, err := f.tasks.Edit(ctx, task.ID, TaskInput{
		Title: "dentist", Date: "2024-01-15", Time: "11:00",
		NotifyEnabled: true, NotifyMinutesBefore: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Set(time.Date(2024, 1, 15, 10, 55, 0, 0, time.UTC))
	if n, _ := svc.Tick(ctx); n != 1 {
		t.Errorf("rescheduled reminder fired %d times", n)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("sent = %d", len(notifier.sent))
	}
}

func TestDailySummary(t *testing.T) {
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "1", Title: "late <report>", Date: "2024-01-12"},
		{ID: "2", Title: "standup", Date: "2024-01-15", Time: "09:30", Category: "work"},
		{ID: "3", Title: "dentist", Date: "2024-01-17", Time: "14:00", Priority: model.PriorityHigh},
		{ID: "4", Title: "hidden template", Date: "2024-01-15", IsTemplate: true, Repeat: model.RepeatDaily},
		{ID: "5", Title: "someday"},
	}
	got := DailySummary(tasks, now)

	for _, want := range []string{
		"2024.01.15(Mon)",
		"total 4 · done 0 · today 1 · overdue 1",
		"late &lt;report&gt;",
		"09:30 standup <i>(work)</i>",
		"2024.01.17(Wed)",
		"🔴 14:00 dentist",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "hidden template") {
		t.Error("templates must not appear in the report")
	}
	if strings.Contains(got, "2024.01.16(Tue)") {
		t.Error("empty days should be skipped")
	}
}

func TestDailySummaryEmptyToday(t *testing.T) {
	got := DailySummary(nil, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "— nothing planned") {
		t.Errorf("summary = %s", got)
	}
}

func TestSendDailySummary(t *testing.T) {
	f := newFixture(t, jan15)
	notifier := &fakeNotifier{perm: PermissionGranted}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())
	if err := svc.SendDailySummary(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Tag != "daily-2024-01-15" {
		t.Errorf("sent = %+v", notifier.sent)
	}
}

func TestReminderNotRepeatedAfterRegeneration(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 3, 0, time.UTC)
	f := newFixture(t, start)
	ctx := context.Background()
	if _, err := f.tasks.Create(ctx, TaskInput{
		Title:         "standup",
		Date:          "2024-01-15",
		Time:          "10:00",
		Repeat:        model.RepeatDaily,
		NotifyEnabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	notifier := &fakeNotifier{perm: PermissionGranted}
	svc := NewReminderService(f.store, notifier, f.clock, zap.NewNop())

	if n, err := svc.Tick(ctx); err != nil || n != 1 {
		t.Fatalf("first tick = %d, %v", n, err)
	}

	// an unrelated template regenerates every instance from today on
	f.clock.Set(start.Add(5 * time.Second))
	if _, err := f.tasks.Create(ctx, TaskInput{
		Title:  "review",
		Date:   "2024-01-16",
		Repeat: model.RepeatWeekly,
	}); err != nil {
		t.Fatal(err)
	}

	f.clock.Set(start.Add(10 * time.Second))
	if n, err := svc.Tick(ctx); err != nil || n != 0 {
		t.Fatalf("second tick = %d, %v", n, err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d reminders, want 1", len(notifier.sent))
	}
}
