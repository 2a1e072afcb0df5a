package recurrence

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/store"
)

type memBlobs map[string][]byte

func (m memBlobs) Load(_ context.Context, key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, repository.ErrBlobNotFound
	}
	return v, nil
}

func (m memBlobs) Save(_ context.Context, key string, data []byte) error {
	m[key] = data
	return nil
}

func (m memBlobs) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func newStore(t *testing.T, now time.Time) (*store.Store, *mutableClock) {
	t.Helper()
	clk := &mutableClock{now: now}
	n := 0
	s := store.New(memBlobs{}, clk, zap.NewNop(), store.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	return s, clk
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func instanceDates(tasks []model.Task, parent string) []string {
	var out []string
	for _, t := range tasks {
		if t.IsInstance && t.ParentID == parent {
			out = append(out, t.Date)
		}
	}
	sort.Strings(out)
	return out
}

func addTemplate(t *testing.T, s *store.Store, tpl model.Task) model.Task {
	t.Helper()
	var added model.Task
	err := s.Update(context.Background(), func(tx *store.Tx) error {
		tpl.IsTemplate = true
		added = tx.Add(tpl)
		Materialize(tx)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return added
}

func TestWeeklyTemplateFromThePast(t *testing.T) {
	s, _ := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "review", Date: "2024-01-01", Repeat: model.RepeatWeekly})

	got := instanceDates(s.Snapshot(), tpl.ID)
	want := []string{"2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05", "2024-02-12"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("instances = %v, want %v", got, want)
	}
}

func TestOccurrencesStayInsideHorizon(t *testing.T) {
	now := day(2024, 1, 15)
	tests := []struct {
		name  string
		tpl   model.Task
		first string
		last  string
		count int
	}{
		{"daily past start", model.Task{Date: "2023-12-01", Repeat: model.RepeatDaily}, "2024-01-15", "2024-02-14", 31},
		{"daily future start", model.Task{Date: "2024-02-10", Repeat: model.RepeatDaily}, "2024-02-10", "2024-02-14", 5},
		{"weekly future start", model.Task{Date: "2024-01-20", Time: "08:00", Repeat: model.RepeatWeekly}, "2024-01-20", "2024-02-10", 4},
		{"monthly", model.Task{Date: "2023-11-20", Repeat: model.RepeatMonthly}, "2024-01-20", "2024-01-20", 1},
		{"start beyond horizon", model.Task{Date: "2024-03-01", Repeat: model.RepeatDaily}, "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tpl.IsTemplate = true
			days := Occurrences(tt.tpl, now)
			if len(days) != tt.count {
				t.Fatalf("count = %d (%v), want %d", len(days), days, tt.count)
			}
			if tt.count == 0 {
				return
			}
			if days[0] != tt.first || days[len(days)-1] != tt.last {
				t.Errorf("range = %s..%s, want %s..%s", days[0], days[len(days)-1], tt.first, tt.last)
			}
			for _, d := range days {
				if d < clock.DayKey(now) || d > "2024-02-14" {
					t.Errorf("occurrence %s outside [today, horizon]", d)
				}
			}
		})
	}
}

func TestOccurrencesTodayEarlierTimeIncluded(t *testing.T) {
	now := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	days := Occurrences(model.Task{IsTemplate: true, Date: "2024-01-15", Time: "07:00", Repeat: model.RepeatDaily}, now)
	if len(days) == 0 || days[0] != "2024-01-15" {
		t.Errorf("today's occurrence should be kept even if its time passed: %v", days)
	}
}

func TestOccurrencesSkipsInactiveTemplates(t *testing.T) {
	now := day(2024, 1, 15)
	cases := []model.Task{
		{IsTemplate: true, Repeat: model.RepeatDaily},
		{IsTemplate: true, Date: "2024-01-15", Repeat: model.RepeatNone},
		{IsTemplate: false, Date: "2024-01-15", Repeat: model.RepeatDaily},
	}
	for i, tpl := range cases {
		if got := Occurrences(tpl, now); got != nil {
			t.Errorf("case %d: Occurrences = %v, want nil", i, got)
		}
	}
}

func TestMonthlyStepOverflowsCalendar(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	got := Step(jan31, model.RepeatMonthly)
	if clock.DayKey(got) != "2024-03-02" || got.Hour() != 10 {
		t.Errorf("2024-01-31 + 1 month = %v, want 2024-03-02 10:00", got)
	}

	nonLeap := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	if got := clock.DayKey(Step(nonLeap, model.RepeatMonthly)); got != "2023-03-03" {
		t.Errorf("2023-01-31 + 1 month = %s, want 2023-03-03", got)
	}
}

func TestMonthlyTemplateKeepsDrift(t *testing.T) {
	s, _ := newStore(t, day(2024, 1, 31))
	tpl := addTemplate(t, s, model.Task{Title: "rent", Date: "2024-01-31", Repeat: model.RepeatMonthly})
	got := instanceDates(s.Snapshot(), tpl.ID)
	want := []string{"2024-01-31"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("instances = %v, want %v", got, want)
	}
	if days := Occurrences(tpl, day(2024, 2, 15)); len(days) != 1 || days[0] != "2024-03-02" {
		t.Errorf("next occurrence after Jan 31 = %v, want [2024-03-02]", days)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	s, _ := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "stretch", Date: "2024-01-10", Time: "07:00", Repeat: model.RepeatDaily})
	first := instanceDates(s.Snapshot(), tpl.ID)

	err := s.Update(context.Background(), func(tx *store.Tx) error {
		Materialize(tx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	second := instanceDates(s.Snapshot(), tpl.ID)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second run changed instances:\n%v\n%v", first, second)
	}
	if len(second) != 31 {
		t.Errorf("len = %d, want 31", len(second))
	}
}

func TestMaterializePreservesPastInstances(t *testing.T) {
	s, clk := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "walk", Date: "2024-01-15", Repeat: model.RepeatDaily})

	// Mark the first instance done, then move on two days.
	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		for i := range tx.All() {
			if tx.All()[i].Date == "2024-01-15" && tx.All()[i].IsInstance {
				tx.All()[i].Done = true
			}
		}
		return nil
	})
	clk.now = day(2024, 1, 17)
	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		Materialize(tx)
		return nil
	})

	var past *model.Task
	tasks := s.Snapshot()
	for i := range tasks {
		if tasks[i].ParentID == tpl.ID && tasks[i].Date == "2024-01-15" {
			past = &tasks[i]
		}
	}
	if past == nil || !past.Done {
		t.Fatalf("past instance should survive untouched, got %+v", past)
	}
	dates := instanceDates(tasks, tpl.ID)
	if dates[len(dates)-1] != "2024-02-16" {
		t.Errorf("horizon should roll forward, last = %s", dates[len(dates)-1])
	}
}

func TestMaterializeKeepsReminderLatch(t *testing.T) {
	s, _ := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "pills", Date: "2024-01-15", Time: "08:00", Repeat: model.RepeatDaily})

	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		for i := range tx.All() {
			if tx.All()[i].IsInstance && tx.All()[i].Date == "2024-01-15" {
				tx.All()[i].Notified = true
			}
		}
		return nil
	})
	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		Materialize(tx)
		return nil
	})

	for _, inst := range s.Snapshot() {
		if inst.ParentID != tpl.ID {
			continue
		}
		if want := inst.Date == "2024-01-15"; inst.Notified != want {
			t.Errorf("%s notified = %v, want %v", inst.Date, inst.Notified, want)
		}
	}
}

func TestMaterializeRegeneratesFutureFromTemplateEdits(t *testing.T) {
	s, _ := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "old", Date: "2024-01-15", Repeat: model.RepeatWeekly, Priority: model.PriorityLow})

	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		p := tx.Find(tpl.ID)
		p.Title = "new"
		p.Time = "18:30"
		p.Priority = model.PriorityHigh
		Materialize(tx)
		return nil
	})

	for _, inst := range s.Snapshot() {
		if inst.ParentID != tpl.ID {
			continue
		}
		if inst.Title != "new" || inst.Time != "18:30" || inst.Priority != model.PriorityHigh {
			t.Errorf("instance not regenerated from template: %+v", inst)
		}
		if inst.Repeat != model.RepeatNone || inst.IsTemplate || inst.Done {
			t.Errorf("instance flags wrong: %+v", inst)
		}
	}
}

func TestDeleteTemplateRemovesAllInstances(t *testing.T) {
	s, clk := newStore(t, day(2024, 1, 15))
	tpl := addTemplate(t, s, model.Task{Title: "t", Date: "2024-01-15", Repeat: model.RepeatDaily})
	clk.now = day(2024, 1, 20)
	_ = s.Update(context.Background(), func(tx *store.Tx) error {
		Materialize(tx)
		tx.Add(model.Task{Title: "unrelated"})
		return nil
	})

	err := s.Update(context.Background(), func(tx *store.Tx) error {
		if n := DeleteTemplate(tx, tpl.ID); n < 2 {
			t.Errorf("removed = %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	tasks := s.Snapshot()
	if len(tasks) != 1 || tasks[0].Title != "unrelated" {
		t.Errorf("remaining = %+v", tasks)
	}
}
