// Package test holds shared test doubles: a sqlmock-backed global DB, an
// in-memory pipeline store and scripted fakes for the external services.
package test

import (
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"podcast-digest/internal/db"
)

// MockTaskEnqueuer is a mock implementation of tasks.TaskEnqueuer for testing.
type MockTaskEnqueuer struct {
	mu            sync.Mutex
	EnqueuedTasks []*asynq.Task
	EnqueuedOpts  [][]asynq.Option
	Err           error
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	m.EnqueuedOpts = append(m.EnqueuedOpts, opts)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: queueOf(opts), Type: task.Type()}, nil
}

func queueOf(opts []asynq.Option) string {
	queue := "default"
	for _, opt := range opts {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	return queue
}

// Queues returns the queue of every enqueued task, in order.
func (m *MockTaskEnqueuer) Queues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	queues := make([]string, 0, len(m.EnqueuedOpts))
	for _, opts := range m.EnqueuedOpts {
		queues = append(queues, queueOf(opts))
	}
	return queues
}

// Types returns the type of every enqueued task, in order.
func (m *MockTaskEnqueuer) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.EnqueuedTasks))
	for _, t := range m.EnqueuedTasks {
		types = append(types, t.Type())
	}
	return types
}

// NewMockDB swaps db.DB for a sqlmock connection until the test ends.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "postgres")

	originalDB := db.DB
	db.DB = sqlxDB
	t.Cleanup(func() {
		db.DB = originalDB
		mockDb.Close()
	})

	return sqlxDB, mock
}
