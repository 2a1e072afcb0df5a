package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/store"
)

type memBlobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (m *memBlobs) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, repository.ErrBlobNotFound
	}
	return v, nil
}

func (m *memBlobs) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store *store.Store
	blobs *memBlobs
	clock *mutableClock
	tasks *TaskService
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	blobs := newMemBlobs()
	clk := &mutableClock{now: now}
	n := 0
	st := store.New(blobs, clk, zap.NewNop(), store.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &fixture{
		store: st,
		blobs: blobs,
		clock: clk,
		tasks: NewTaskService(st, clk, zap.NewNop()),
	}
}

// seed adds records directly, bypassing validation.
func (f *fixture) seed(t *testing.T, tasks ...model.Task) []model.Task {
	t.Helper()
	var out []model.Task
	err := f.store.Update(context.Background(), func(tx *store.Tx) error {
		for _, task := range tasks {
			out = append(out, tx.Add(task))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return out
}

func (f *fixture) get(t *testing.T, id string) model.Task {
	t.Helper()
	task, ok := f.store.Get(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return task
}

func countInstances(tasks []model.Task, parent string) int {
	n := 0
	for _, t := range tasks {
		if t.IsInstance && t.ParentID == parent {
			n++
		}
	}
	return n
}

var jan15 = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
