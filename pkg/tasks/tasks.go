package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeFetchAllFeeds       = "feeds:fetch-all"
	TypeFetchFeed           = "feed:fetch"
	TypeSubmitTranscription = "transcription:submit"
	TypeSubmitPass          = "transcription:submit-pass"
	TypePollPass            = "transcription:poll-pass"
	TypeAnalysisPass        = "analysis:pass"
	TypeNotificationPass    = "notifications:pass"
)

// Queues served by the worker. Per-episode submits go to QueueHigh.
const (
	QueueHigh    = "high"
	QueueDefault = "default"
)

type FetchFeedTaskPayload struct {
	PodcastID int64
}

func NewFetchFeedTask(podcastID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(FetchFeedTaskPayload{PodcastID: podcastID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFetchFeed, payload), nil
}

type SubmitTranscriptionTaskPayload struct {
	EpisodeID int64
}

func NewSubmitTranscriptionTask(episodeID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(SubmitTranscriptionTaskPayload{EpisodeID: episodeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSubmitTranscription, payload), nil
}

func NewFetchAllFeedsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeFetchAllFeeds, nil), nil
}

// NewPassTask builds one of the payload-less periodic pass tasks.
func NewPassTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil)
}
