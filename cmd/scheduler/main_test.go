package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/config"
	"podcast-digest/pkg/tasks"
)

func TestPeriodicTasks(t *testing.T) {
	cfg := &config.Config{
		FetchSchedule:    "@every 1h",
		SubmitSchedule:   "@every 10m",
		PollSchedule:     "@every 2m",
		AnalysisSchedule: "@every 5m",
		NotifySchedule:   "*/5 * * * *",
	}

	var types []string
	for _, p := range periodicTasks(cfg) {
		task, err := p.task()
		require.NoError(t, err)
		types = append(types, task.Type())
		if task.Type() == tasks.TypeNotificationPass {
			assert.Equal(t, "*/5 * * * *", p.spec)
			assert.NotEmpty(t, p.opts)
		}
	}
	assert.Equal(t, []string{
		tasks.TypeFetchAllFeeds,
		tasks.TypeSubmitPass,
		tasks.TypePollPass,
		tasks.TypeAnalysisPass,
		tasks.TypeNotificationPass,
	}, types)
}
