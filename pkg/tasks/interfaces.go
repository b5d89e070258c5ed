package tasks

import "github.com/hibiken/asynq"

// TaskEnqueuer is the part of asynq.Client that handlers need to schedule
// follow-up work. Tests use test.MockTaskEnqueuer.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
