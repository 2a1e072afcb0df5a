package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"todo-planner/internal/clock"
	"todo-planner/internal/view"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewSchedulerService(loc *time.Location, log *zap.Logger) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(log.Named("cron"))))),
		),
		log: log,
	}
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *SchedulerService) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

// ScheduleInterval registers a periodic job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)
	return s.cron.AddFunc(spec, job)
}

func (s *SchedulerService) Start() {
	s.log.Info("scheduler started", zap.Int("jobs", s.Entries()))
	s.cron.Start()
}

// Stop halts every job and waits for running ones to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries reports how many jobs are registered.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// Planner ties the periodic work of the planner to a scheduler: the display
// refresh tick, the reminder tick and the daily report.
type Planner struct {
	tasks     *TaskService
	reminders *ReminderService
	clock     clock.Clock
	log       *zap.Logger

	mu      sync.Mutex
	lastDay string
	counts  view.Counts
}

func NewPlanner(tasks *TaskService, reminders *ReminderService, clk clock.Clock, log *zap.Logger) *Planner {
	return &Planner{tasks: tasks, reminders: reminders, clock: clk, log: log}
}

// Refresh recomputes the dashboard counts. When the day changed since the
// last refresh the recurrence engine runs again so the horizon rolls forward.
func (p *Planner) Refresh(ctx context.Context) error {
	today := clock.DayKey(p.clock.Now())

	p.mu.Lock()
	rolled := p.lastDay != today
	p.mu.Unlock()

	if rolled {
		added, err := p.tasks.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("refresh recurrence: %w", err)
		}
		p.log.Info("day rolled over", zap.String("day", today), zap.Int("instances_added", added))
	}

	counts := p.tasks.Counts()
	p.mu.Lock()
	p.lastDay = today
	p.counts = counts
	p.mu.Unlock()
	return nil
}

// Counts returns the counts from the last refresh.
func (p *Planner) Counts() view.Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

// Schedule registers the planner jobs on s. Jobs run with ctx.
func (p *Planner) Schedule(ctx context.Context, s *SchedulerService, refreshEvery, reminderEvery time.Duration, reportAt string) error {
	if _, err := s.ScheduleInterval(refreshEvery, func() {
		if err := p.Refresh(ctx); err != nil {
			p.log.Error("refresh tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	if _, err := s.ScheduleInterval(reminderEvery, func() {
		if _, err := p.reminders.Tick(ctx); err != nil {
			p.log.Error("reminder tick failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}

	if reportAt != "" {
		if _, err := s.ScheduleDaily(reportAt, func() {
			if err := p.reminders.SendDailySummary(ctx); err != nil {
				p.log.Error("daily report failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule daily report: %w", err)
		}
	}
	return nil
}
