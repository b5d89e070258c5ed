package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFetchFeedTask(t *testing.T) {
	task, err := NewFetchFeedTask(7)
	require.NoError(t, err)
	assert.Equal(t, TypeFetchFeed, task.Type())

	var p FetchFeedTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, int64(7), p.PodcastID)
}

func TestNewSubmitTranscriptionTask(t *testing.T) {
	task, err := NewSubmitTranscriptionTask(42)
	require.NoError(t, err)
	assert.Equal(t, TypeSubmitTranscription, task.Type())
	assert.JSONEq(t, `{"EpisodeID":42}`, string(task.Payload()))
}
