package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"podcast-digest/internal/models"
)

// FakeFeedSource serves canned feeds by URL.
type FakeFeedSource struct {
	mu    sync.Mutex
	Feeds map[string]models.Feed
	Errs  map[string]error
	Calls int
}

func (f *FakeFeedSource) Fetch(ctx context.Context, feedURL string) (models.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if err := f.Errs[feedURL]; err != nil {
		return models.Feed{}, err
	}
	feed, ok := f.Feeds[feedURL]
	if !ok {
		return models.Feed{}, fmt.Errorf("no feed at %s", feedURL)
	}
	return feed, nil
}

// FakeTranscriber hands out job IDs "job-1", "job-2", ... and replays the
// scripted statuses of each job, repeating the last one.
type FakeTranscriber struct {
	mu sync.Mutex

	// SubmitErr fails every submit while set.
	SubmitErr error
	// Script is the status sequence for every job unless PerJob overrides it.
	Script []models.ProviderStatus
	PerJob map[string][]models.ProviderStatus
	// StatusErr makes GetStatus fail.
	StatusErr error

	Submits  int
	Polls    map[string]int
	AudioURL []string
}

func (f *FakeTranscriber) SubmitJob(ctx context.Context, audioURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submits++
	f.AudioURL = append(f.AudioURL, audioURL)
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	return fmt.Sprintf("job-%d", f.Submits), nil
}

func (f *FakeTranscriber) GetStatus(ctx context.Context, jobID string) (models.ProviderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Polls == nil {
		f.Polls = make(map[string]int)
	}
	n := f.Polls[jobID]
	f.Polls[jobID] = n + 1
	if f.StatusErr != nil {
		return models.ProviderStatus{}, f.StatusErr
	}

	script := f.Script
	if s, ok := f.PerJob[jobID]; ok {
		script = s
	}
	if len(script) == 0 {
		return models.ProviderStatus{State: models.ProviderPending}, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

// FakeSummarizer fails the first FailTimes calls with Err, then returns Summary.
type FakeSummarizer struct {
	mu        sync.Mutex
	Summary   string
	Err       error
	FailTimes int
	Requests  []models.SummaryRequest
}

func (f *FakeSummarizer) Summarize(ctx context.Context, req models.SummaryRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if len(f.Requests) <= f.FailTimes {
		if f.Err != nil {
			return "", f.Err
		}
		return "", errors.New("summarizer unavailable")
	}
	return f.Summary, nil
}

// Delivery is one payload accepted by FakeSink.
type Delivery struct {
	UserID  int64
	Payload models.Payload
}

// FakeSink records deliveries. Err makes every delivery fail.
type FakeSink struct {
	mu         sync.Mutex
	Err        error
	Deliveries []Delivery
	Now        func() time.Time
}

func (f *FakeSink) Deliver(ctx context.Context, userID int64, payload models.Payload) (models.DeliveryConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return models.DeliveryConfirmation{}, f.Err
	}
	f.Deliveries = append(f.Deliveries, Delivery{UserID: userID, Payload: payload})
	conf := models.DeliveryConfirmation{ID: fmt.Sprintf("msg-%d", len(f.Deliveries))}
	if f.Now != nil {
		conf.DeliveredAt = f.Now()
	}
	return conf, nil
}
