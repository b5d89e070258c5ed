package main

import (
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phuslu/log"

	"podcast-digest/internal/config"
	"podcast-digest/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

type periodicTask struct {
	spec string
	task func() (*asynq.Task, error)
	opts []asynq.Option
}

func periodicTasks(cfg *config.Config) []periodicTask {
	pass := func(typ string) func() (*asynq.Task, error) {
		return func() (*asynq.Task, error) { return tasks.NewPassTask(typ), nil }
	}
	return []periodicTask{
		{spec: cfg.FetchSchedule, task: tasks.NewFetchAllFeedsTask},
		{spec: cfg.SubmitSchedule, task: pass(tasks.TypeSubmitPass)},
		{spec: cfg.PollSchedule, task: pass(tasks.TypePollPass)},
		{spec: cfg.AnalysisSchedule, task: pass(tasks.TypeAnalysisPass)},
		// At most one notification pass is queued at a time.
		{spec: cfg.NotifySchedule, task: pass(tasks.TypeNotificationPass), opts: []asynq.Option{asynq.Unique(30 * time.Minute), asynq.MaxRetry(0)}},
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg == nil {
		return
	}
	cfg.SetupLogger()

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	for _, p := range periodicTasks(cfg) {
		task, err := p.task()
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create task")
		}
		if _, err := scheduler.Register(p.spec, task, p.opts...); err != nil {
			log.Fatal().Err(err).Str("task", task.Type()).Str("spec", p.spec).Msg("Could not register task")
		}
		log.Info().Str("task", task.Type()).Str("spec", p.spec).Msg("Registered periodic task")
	}

	log.Info().Str("commit", CommitSHA).Msg("Scheduler starting")
	if err := scheduler.Run(); err != nil {
		log.Fatal().Err(err).Msg("Could not run scheduler")
	}
}
