package service

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"todo-planner/internal/apperr"
	"todo-planner/internal/backup"
	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/store"
	"todo-planner/internal/view"
)

// TaskInput represents data required to create or edit a task.
type TaskInput struct {
	Title               string
	Date                string
	Time                string
	Priority            model.Priority
	Category            string
	Notes               string
	Repeat              model.Repeat
	NotifyEnabled       bool
	NotifyMinutesBefore int
}

func (in TaskInput) normalized() TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.Category = strings.TrimSpace(in.Category)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Repeat == "" {
		in.Repeat = model.RepeatNone
	}
	return in
}

func (in TaskInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.Date, validation.By(validDay)),
		validation.Field(&in.Time, validation.By(validTime)),
		validation.Field(&in.Priority, validation.In(model.PriorityLow, model.PriorityNormal, model.PriorityHigh)),
		validation.Field(&in.Category, validation.RuneLength(0, 60)),
		validation.Field(&in.Notes, validation.RuneLength(0, 2000)),
		validation.Field(&in.Repeat, validation.In(model.RepeatNone, model.RepeatDaily, model.RepeatWeekly, model.RepeatMonthly)),
		validation.Field(&in.NotifyMinutesBefore, validation.Min(0), validation.Max(1440)),
	)
}

func validDay(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !clock.ValidDay(s) {
		return validation.NewError("validation_day", "must be a YYYY-MM-DD date")
	}
	return nil
}

func validTime(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !clock.ValidTime(s) {
		return validation.NewError("validation_time", "must be a HH:MM time")
	}
	return nil
}

// check normalizes and validates in. A recurring task without a date is
// rejected here so no batch is started.
func (in TaskInput) check() (TaskInput, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return in, apperr.Invalid("invalid task", err)
	}
	if in.Repeat != model.RepeatNone && in.Date == "" {
		return in, apperr.ErrDateRequired
	}
	return in, nil
}

// TaskService wraps task-related business logic.
type TaskService struct {
	store *store.Store
	clock clock.Clock
	log   *zap.Logger
}

func NewTaskService(st *store.Store, clk clock.Clock, log *zap.Logger) *TaskService {
	return &TaskService{store: st, clock: clk, log: log}
}

// Create adds a task. A repeating task becomes a template and its instances
// are materialized in the same batch.
func (s *TaskService) Create(ctx context.Context, input TaskInput) (model.Task, error) {
	in, err := input.check()
	if err != nil {
		return model.Task{}, err
	}

	var created model.Task
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		created = tx.Add(model.Task{
			Title:               in.Title,
			Date:                in.Date,
			Time:                in.Time,
			Priority:            in.Priority,
			Category:            in.Category,
			Notes:               in.Notes,
			Repeat:              in.Repeat,
			IsTemplate:          in.Repeat != model.RepeatNone,
			NotifyEnabled:       in.NotifyEnabled,
			NotifyMinutesBefore: in.NotifyMinutesBefore,
		})
		if created.IsTemplate {
			n := recurrence.Materialize(tx)
			s.log.Info("template created", zap.String("task_id", created.ID), zap.Int("instances", n))
		}
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return created, nil
}

// Edit overwrites the editable fields of id. Instances keep repeat none, and
// an edited instance dated today or later is replaced on the next
// regeneration of its template. Turning repeat off on a template deletes all
// its instances, past ones included; turning it on makes the record a template.
func (s *TaskService) Edit(ctx context.Context, id string, input TaskInput) (model.Task, error) {
	in, err := input.check()
	if err != nil {
		return model.Task{}, err
	}

	var edited model.Task
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		t := tx.Find(id)
		if t == nil {
			return apperr.ErrTaskNotFound
		}
		if t.IsInstance {
			in.Repeat = model.RepeatNone
		}

		wasTemplate := t.IsTemplate
		if t.Title != in.Title || t.Date != in.Date || t.Time != in.Time {
			t.Notified = false
		}
		t.Title = in.Title
		t.Date = in.Date
		t.Time = in.Time
		t.Priority = in.Priority
		t.Category = in.Category
		t.Notes = in.Notes
		t.NotifyEnabled = in.NotifyEnabled
		t.NotifyMinutesBefore = in.NotifyMinutesBefore
		t.UpdatedAt = tx.NowMillis()
		if !t.IsInstance {
			t.Repeat = in.Repeat
			t.IsTemplate = in.Repeat != model.RepeatNone
		}
		edited = *t

		if wasTemplate && !edited.IsTemplate {
			n := recurrence.DeleteInstances(tx, id)
			s.log.Info("recurrence turned off", zap.String("task_id", id), zap.Int("removed", n))
		}
		if wasTemplate || edited.IsTemplate {
			recurrence.Materialize(tx)
		}
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return edited, nil
}

// Delete removes one record. Deleting a template takes its instances with it.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		t := tx.Find(id)
		if t == nil {
			return apperr.ErrTaskNotFound
		}
		if t.IsTemplate {
			recurrence.DeleteTemplate(tx, id)
			return nil
		}
		tx.Remove(func(x model.Task) bool { return x.ID == id })
		return nil
	})
}

// DeleteTemplate removes the template id and all of its instances.
func (s *TaskService) DeleteTemplate(ctx context.Context, id string) (int, error) {
	var removed int
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		t := tx.Find(id)
		if t == nil || !t.IsTemplate {
			return apperr.ErrTaskNotFound
		}
		removed = recurrence.DeleteTemplate(tx, id)
		return nil
	})
	return removed, err
}

// ToggleDone flips the done flag of a visible record.
func (s *TaskService) ToggleDone(ctx context.Context, id string) (model.Task, error) {
	var out model.Task
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		t := tx.Find(id)
		if t == nil || !t.Visible() {
			return apperr.ErrTaskNotFound
		}
		t.Done = !t.Done
		t.UpdatedAt = tx.NowMillis()
		out = *t
		return nil
	})
	return out, err
}

// Reorder assigns order 1..n to the visible records in ids. Unknown ids and
// templates are ignored.
func (s *TaskService) Reorder(ctx context.Context, ids []string) error {
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, seen := position[id]; !seen {
			position[id] = i + 1
		}
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		all := tx.All()
		for i := range all {
			if !all[i].Visible() {
				continue
			}
			if p, ok := position[all[i].ID]; ok {
				all[i].Order = p
				all[i].UpdatedAt = tx.NowMillis()
			}
		}
		return nil
	})
}

// Reset deletes every record.
func (s *TaskService) Reset(ctx context.Context) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		tx.Replace(nil)
		return nil
	})
}

// Refresh re-runs the recurrence engine and reports how many instances were added.
func (s *TaskService) Refresh(ctx context.Context) (int, error) {
	var added int
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		added = recurrence.Materialize(tx)
		return nil
	})
	return added, err
}

// ImportBackup replaces the whole list with a backup file. Invalid files
// leave the store unchanged.
func (s *TaskService) ImportBackup(ctx context.Context, data []byte) ([]backup.FieldIssue, error) {
	tasks, issues, err := backup.Decode(data, backup.Options{Now: s.clock.Now()})
	if err != nil {
		return nil, apperr.Invalid("invalid backup file", err)
	}
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		tx.Replace(tasks)
		recurrence.Materialize(tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("backup imported", zap.Int("count", len(tasks)), zap.Int("issues", len(issues)))
	return issues, nil
}

// ExportBackup serializes every record, templates included.
func (s *TaskService) ExportBackup() ([]byte, error) {
	data, err := backup.Encode(s.store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("export backup: %w", err)
	}
	return data, nil
}

func (s *TaskService) Get(id string) (model.Task, error) {
	t, ok := s.store.Get(id)
	if !ok {
		return model.Task{}, apperr.ErrTaskNotFound
	}
	return t, nil
}

// Resolve finds the record whose id starts with prefix. Chat users type the
// short ids shown in lists, so the prefix must be unique.
func (s *TaskService) Resolve(prefix string) (model.Task, error) {
	prefix = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(prefix), "#"))
	if prefix == "" {
		return model.Task{}, apperr.ErrTaskNotFound
	}
	var found []model.Task
	for _, t := range s.store.Snapshot() {
		if strings.HasPrefix(t.ID, prefix) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return model.Task{}, apperr.ErrTaskNotFound
	case 1:
		return found[0], nil
	default:
		return model.Task{}, apperr.ErrAmbiguousID
	}
}

func (s *TaskService) List(q view.Query) []model.Task {
	return view.Project(s.store.Snapshot(), q, s.clock.Now())
}

func (s *TaskService) Counts() view.Counts {
	return view.Count(s.store.Snapshot(), s.clock.Now())
}

func (s *TaskService) Agenda() []view.Day {
	return view.Agenda(s.store.Snapshot(), s.clock.Now())
}

func (s *TaskService) Templates() []model.Task {
	return view.Templates(s.store.Snapshot())
}
