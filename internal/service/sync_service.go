package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/apperr"
	"todo-planner/internal/clock"
	"todo-planner/internal/gtasks"
	"todo-planner/internal/model"
	"todo-planner/internal/store"
	"todo-planner/internal/xref"
)

// RemoteTasks is the remote task-list API used by SyncService.
type RemoteTasks interface {
	ListTaskLists(ctx context.Context) ([]gtasks.TaskList, error)
	ListTasks(ctx context.Context, listID string) ([]gtasks.Task, error)
	InsertTask(ctx context.Context, listID string, t gtasks.Task) (gtasks.Task, error)
	PatchTask(ctx context.Context, listID string, t gtasks.Task) (gtasks.Task, error)
}

// Authorizer obtains a token before a sync starts, prompting when interactive.
type Authorizer interface {
	AccessToken(ctx context.Context, interactive bool) (string, error)
}

// ImportReport counts what an import changed locally.
type ImportReport struct {
	Created int
	Updated int
}

// ExportReport counts what an export changed remotely.
type ExportReport struct {
	Inserted int
	Patched  int
}

// SyncReport is the outcome of a full sync.
type SyncReport struct {
	Import ImportReport
	Export ExportReport
}

// SyncService reconciles visible records with one remote task list.
// Templates are never sent or matched. Only one operation runs at a time;
// a concurrent call fails with apperr.ErrSyncInProgress.
type SyncService struct {
	store       *store.Store
	remote      RemoteTasks
	auth        Authorizer
	listID      string
	interactive bool
	clock       clock.Clock
	log         *zap.Logger

	running sync.Mutex
}

// SyncOption customises a SyncService.
type SyncOption func(*SyncService)

// WithAuthorizer makes every operation obtain a token up front. Interactive
// authorizers may prompt the user at that point.
func WithAuthorizer(a Authorizer, interactive bool) SyncOption {
	return func(s *SyncService) {
		s.auth = a
		s.interactive = interactive
	}
}

func NewSyncService(st *store.Store, remote RemoteTasks, listID string, clk clock.Clock, log *zap.Logger, opts ...SyncOption) *SyncService {
	s := &SyncService{
		store:  st,
		remote: remote,
		listID: strings.TrimSpace(listID),
		clock:  clk,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTaskLists returns the remote lists so the user can pick one.
func (s *SyncService) ListTaskLists(ctx context.Context) ([]gtasks.TaskList, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	return s.remote.ListTaskLists(ctx)
}

// Import pulls every remote task of the configured list into the store.
func (s *SyncService) Import(ctx context.Context) (ImportReport, error) {
	if !s.running.TryLock() {
		return ImportReport{}, apperr.ErrSyncInProgress
	}
	defer s.running.Unlock()
	return s.importTasks(ctx)
}

// Export pushes every visible record to the configured list.
func (s *SyncService) Export(ctx context.Context) (ExportReport, error) {
	if !s.running.TryLock() {
		return ExportReport{}, apperr.ErrSyncInProgress
	}
	defer s.running.Unlock()
	return s.exportTasks(ctx)
}

// Sync imports and then exports.
func (s *SyncService) Sync(ctx context.Context) (SyncReport, error) {
	if !s.running.TryLock() {
		return SyncReport{}, apperr.ErrSyncInProgress
	}
	defer s.running.Unlock()

	var report SyncReport
	var err error
	if report.Import, err = s.importTasks(ctx); err != nil {
		return report, err
	}
	report.Export, err = s.exportTasks(ctx)
	return report, err
}

func (s *SyncService) ready(ctx context.Context) error {
	if s.listID == "" {
		return apperr.ErrTaskListRequired
	}
	return s.authorize(ctx)
}

func (s *SyncService) authorize(ctx context.Context) error {
	if s.auth == nil {
		return nil
	}
	if _, err := s.auth.AccessToken(ctx, s.interactive); err != nil {
		return apperr.Wrap(apperr.CodeUnauthorized, "sign in to google tasks", err)
	}
	return nil
}

func (s *SyncService) importTasks(ctx context.Context) (ImportReport, error) {
	var report ImportReport
	if err := s.ready(ctx); err != nil {
		return report, err
	}
	remote, err := s.remote.ListTasks(ctx, s.listID)
	if err != nil {
		return report, err
	}

	err = s.store.Update(ctx, func(tx *store.Tx) error {
		loc := tx.Now().Location()
		for _, r := range remote {
			if r.ID == "" {
				continue
			}
			notes, ref := xref.Decode(r.Notes)
			date, tm := dueToLocal(r.Due, loc)
			title := strings.TrimSpace(r.Title)
			done := r.Status == gtasks.StatusCompleted

			if target := matchVisible(tx, ref, r.ID); target != nil {
				if title != "" {
					target.Title = title
				}
				target.Date = date
				target.Time = tm
				target.Done = done
				target.Notes = notes
				target.ExternalTaskID = r.ID
				target.UpdatedAt = tx.NowMillis()
				report.Updated++
				continue
			}

			if title == "" {
				title = model.UntitledTitle
			}
			tx.Add(model.Task{
				Title:               title,
				Date:                date,
				Time:                tm,
				Priority:            model.PriorityNormal,
				Notes:               notes,
				Repeat:              model.RepeatNone,
				NotifyMinutesBefore: model.DefaultNotifyMinutes,
				ExternalTaskID:      r.ID,
				Done:                done,
			})
			report.Created++
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, err
	}
	s.log.Info("imported remote tasks",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated))
	return report, nil
}

// matchVisible finds the local record for a remote task: by embedded id
// first, then by stored remote id.
func matchVisible(tx *store.Tx, ref, remoteID string) *model.Task {
	all := tx.All()
	if ref != "" {
		for i := range all {
			if all[i].ID == ref && all[i].Visible() {
				return &all[i]
			}
		}
	}
	for i := range all {
		if all[i].ExternalTaskID == remoteID && all[i].Visible() {
			return &all[i]
		}
	}
	return nil
}

func (s *SyncService) exportTasks(ctx context.Context) (ExportReport, error) {
	var report ExportReport
	if err := s.ready(ctx); err != nil {
		return report, err
	}

	loc := s.clock.Now().Location()
	created := make(map[string]string)
	var exportErr error
	for _, t := range store.Visible(s.store.Snapshot()) {
		payload := gtasks.Task{
			ID:     t.ExternalTaskID,
			Title:  t.Title,
			Notes:  xref.Encode(t.Notes, t.ID),
			Due:    dueToRemote(t.Date, t.Time, loc),
			Status: gtasks.StatusNeedsAction,
		}
		if t.Done {
			payload.Status = gtasks.StatusCompleted
		}

		if t.ExternalTaskID == "" {
			r, err := s.remote.InsertTask(ctx, s.listID, payload)
			if err != nil {
				exportErr = err
				break
			}
			created[t.ID] = r.ID
			report.Inserted++
			continue
		}
		if _, err := s.remote.PatchTask(ctx, s.listID, payload); err != nil {
			exportErr = err
			break
		}
		report.Patched++
	}

	// Remote ids obtained before a failure are kept.
	if len(created) > 0 {
		err := s.store.Update(ctx, func(tx *store.Tx) error {
			for localID, remoteID := range created {
				if t := tx.Find(localID); t != nil {
					t.ExternalTaskID = remoteID
					t.UpdatedAt = tx.NowMillis()
				}
			}
			return nil
		})
		if err != nil && exportErr == nil {
			exportErr = err
		}
	}
	if exportErr != nil {
		s.log.Warn("export aborted",
			zap.Int("inserted", report.Inserted),
			zap.Int("patched", report.Patched),
			zap.Error(exportErr))
		return report, exportErr
	}
	s.log.Info("exported tasks", zap.Int("inserted", report.Inserted), zap.Int("patched", report.Patched))
	return report, nil
}

// dueToRemote renders the local due instant as RFC3339 UTC, or "" when the
// record has no date.
func dueToRemote(date, tm string, loc *time.Location) string {
	due, ok := clock.ParseDue(date, tm, loc)
	if !ok {
		return ""
	}
	return due.UTC().Format(time.RFC3339)
}

// dueToLocal converts a remote due to a local day key and clock time. Midnight
// and 23:59 read back as date-only.
func dueToLocal(due string, loc *time.Location) (date, tm string) {
	if due == "" {
		return "", ""
	}
	t, err := time.Parse(time.RFC3339, due)
	if err != nil {
		return "", ""
	}
	t = t.In(loc)
	tm = clock.FormatTime(t)
	if tm == "00:00" || tm == clock.EndOfDay {
		tm = ""
	}
	return clock.DayKey(t), tm
}
