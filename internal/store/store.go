// Package store keeps the ordered task list in memory and persists it as one
// blob. Every mutation runs as a batch through Update: the batch works on a
// copy, and the copy replaces the live list and is saved only when the batch
// succeeds.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todo-planner/internal/backup"
	"todo-planner/internal/clock"
	"todo-planner/internal/model"
	"todo-planner/internal/repository"
)

// Key is the fixed blob key of the task list.
const Key = "todo_schedule_v1"

// Store owns the task list.
type Store struct {
	mu    sync.Mutex
	blobs repository.BlobStore
	clock clock.Clock
	log   *zap.Logger
	newID func() string
	tasks []model.Task
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator replaces uuid generation, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(blobs repository.BlobStore, clk clock.Clock, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		blobs: blobs,
		clock: clk,
		log:   log,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the persisted one. A missing or
// corrupt blob yields an empty list; only storage errors are returned.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.blobs.Load(ctx, Key)
	if errors.Is(err, repository.ErrBlobNotFound) {
		s.setTasks(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	tasks, issues, err := backup.Decode(data, backup.Options{NewID: s.newID, Now: s.clock.Now()})
	if err != nil {
		s.log.Warn("stored task list is corrupt, starting empty", zap.Error(err))
		s.setTasks(nil)
		return nil
	}
	for _, is := range issues {
		s.log.Warn("repaired stored task", zap.String("issue", is.String()))
	}
	s.setTasks(tasks)
	s.log.Info("tasks loaded", zap.Int("count", len(tasks)))
	return nil
}

func (s *Store) setTasks(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tasks == nil {
		tasks = []model.Task{}
	}
	s.tasks = tasks
}

// Snapshot returns a copy of every record in store order.
func (s *Store) Snapshot() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get returns a copy of the record with id.
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Update runs fn as one batch. The batch is committed and saved once if fn
// returns nil; otherwise the live list is left untouched.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		tasks: make([]model.Task, len(s.tasks)),
		now:   s.clock.Now(),
		newID: s.newID,
	}
	copy(tx.tasks, s.tasks)

	if err := fn(tx); err != nil {
		return err
	}

	data, err := json.Marshal(tx.tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := s.blobs.Save(ctx, Key, data); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	s.tasks = tx.tasks
	return nil
}

// Tx is the working copy of one batch.
type Tx struct {
	tasks []model.Task
	now   time.Time
	newID func() string
}

// Now is the instant the batch started.
func (tx *Tx) Now() time.Time { return tx.now }

// NowMillis is Now as unix milliseconds, the unit of record timestamps.
func (tx *Tx) NowMillis() int64 { return tx.now.UnixMilli() }

// NewID issues a fresh record id.
func (tx *Tx) NewID() string { return tx.newID() }

// All exposes the working list. Callers must not append to it.
func (tx *Tx) All() []model.Task { return tx.tasks }

// Find returns a pointer into the working list. The pointer is valid until
// the next Add, Remove or Replace.
func (tx *Tx) Find(id string) *model.Task {
	for i := range tx.tasks {
		if tx.tasks[i].ID == id {
			return &tx.tasks[i]
		}
	}
	return nil
}

// NextOrder returns one past the highest order in use.
func (tx *Tx) NextOrder() int {
	highest := 0
	for _, t := range tx.tasks {
		if t.Order > highest {
			highest = t.Order
		}
	}
	return highest + 1
}

// Add appends t, filling id, order and timestamps when they are unset.
func (tx *Tx) Add(t model.Task) model.Task {
	if t.ID == "" {
		t.ID = tx.newID()
	}
	if t.Order == 0 {
		t.Order = tx.NextOrder()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = tx.NowMillis()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = tx.NowMillis()
	}
	tx.tasks = append(tx.tasks, t)
	return t
}

// Remove deletes every record matching pred and reports how many went.
func (tx *Tx) Remove(pred func(model.Task) bool) int {
	kept := tx.tasks[:0]
	removed := 0
	for _, t := range tx.tasks {
		if pred(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	tx.tasks = kept
	return removed
}

// Replace swaps the whole working list.
func (tx *Tx) Replace(tasks []model.Task) {
	tx.tasks = append([]model.Task{}, tasks...)
}

// Visible returns copies of standalone tasks and instances.
func (tx *Tx) Visible() []model.Task {
	return Visible(tx.tasks)
}

// Visible filters out templates.
func Visible(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Visible() {
			out = append(out, t)
		}
	}
	return out
}
