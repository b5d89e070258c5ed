package test

import (
	"context"
	"sort"
	"sync"
	"time"

	"podcast-digest/internal/models"
)

type guidKey struct {
	podcastID int64
	guid      string
}

type pairKey struct {
	userID    int64
	episodeID int64
}

// MemStore is an in-memory pipeline store with the same uniqueness, lease
// and compare-and-set rules as the Postgres one.
type MemStore struct {
	mu        sync.Mutex
	nextID    int64
	podcasts  map[int64]models.Podcast
	episodes  map[int64]models.Episode
	guids     map[guidKey]int64
	jobs      map[string]models.TranscriptionJob
	subs      map[int64]models.Subscription
	processed map[pairKey]models.ProcessedEpisode

	// MarkProcessedErr, when set, makes MarkProcessed fail.
	MarkProcessedErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		podcasts:  make(map[int64]models.Podcast),
		episodes:  make(map[int64]models.Episode),
		guids:     make(map[guidKey]int64),
		jobs:      make(map[string]models.TranscriptionJob),
		subs:      make(map[int64]models.Subscription),
		processed: make(map[pairKey]models.ProcessedEpisode),
	}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

// AddPodcast seeds a podcast.
func (s *MemStore) AddPodcast(title, feedURL string) models.Podcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Podcast{ID: s.id(), Title: title, FeedURL: feedURL, CreatedAt: time.Now()}
	s.podcasts[p.ID] = p
	return p
}

// AddSubscription seeds an active subscription.
func (s *MemStore) AddSubscription(userID, podcastID int64, cadence models.Cadence, createdAt time.Time) models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := models.Subscription{ID: s.id(), UserID: userID, PodcastID: podcastID, Cadence: cadence, Active: true, CreatedAt: createdAt, UpdatedAt: createdAt}
	s.subs[sub.ID] = sub
	return sub
}

// SetSubscriptionActive toggles a seeded subscription.
func (s *MemStore) SetSubscriptionActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subs[id]
	sub.Active = active
	s.subs[id] = sub
}

// PutEpisode stores ep as is, assigning an ID when it has none.
func (s *MemStore) PutEpisode(ep models.Episode) models.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep.ID == 0 {
		ep.ID = s.id()
	}
	s.episodes[ep.ID] = ep
	s.guids[guidKey{ep.PodcastID, ep.GUID}] = ep.ID
	return ep
}

// Episode returns the stored episode without a context.
func (s *MemStore) Episode(id int64) models.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodes[id]
}

// Episodes returns all episodes ordered by ID.
func (s *MemStore) Episodes() []models.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Episode, 0, len(s.episodes))
	for _, ep := range s.episodes {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JobsFor returns every job of the episode ordered by attempt.
func (s *MemStore) JobsFor(episodeID int64) []models.TranscriptionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TranscriptionJob
	for _, j := range s.jobs {
		if j.EpisodeID == episodeID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out
}

// Processed returns all processed records ordered by (user, episode).
func (s *MemStore) Processed() []models.ProcessedEpisode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ProcessedEpisode, 0, len(s.processed))
	for _, p := range s.processed {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].EpisodeID < out[j].EpisodeID
	})
	return out
}

func (s *MemStore) ListPodcasts(ctx context.Context) ([]models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Podcast, 0, len(s.podcasts))
	for _, p := range s.podcasts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetPodcast(ctx context.Context, id int64) (models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.podcasts[id]
	if !ok {
		return p, models.ErrNotFound
	}
	return p, nil
}

func (s *MemStore) TouchPodcast(ctx context.Context, id int64, title string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.podcasts[id]
	if !ok {
		return models.ErrNotFound
	}
	p.Title = title
	p.LastCheckedAt = &checkedAt
	s.podcasts[id] = p
	return nil
}

func (s *MemStore) InsertEpisode(ctx context.Context, ep *models.Episode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := guidKey{ep.PodcastID, ep.GUID}
	if id, ok := s.guids[key]; ok {
		ep.ID = id
		return false, nil
	}
	ep.ID = s.id()
	s.episodes[ep.ID] = *ep
	s.guids[key] = ep.ID
	return true, nil
}

func (s *MemStore) GetEpisode(ctx context.Context, id int64) (models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[id]
	if !ok {
		return ep, models.ErrNotFound
	}
	return ep, nil
}

func leaseFree(ep models.Episode, now time.Time) bool {
	return ep.LeaseUntil == nil || ep.LeaseUntil.Before(now)
}

func (s *MemStore) listEpisodes(limit int, keep func(models.Episode) bool) []models.Episode {
	var out []models.Episode
	for _, ep := range s.episodes {
		if keep(ep) {
			out = append(out, ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemStore) ListSubmittable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEpisodes(limit, func(ep models.Episode) bool {
		switch {
		case ep.TranscriptionState == models.StateDiscovered:
		case ep.TranscriptionState == models.StateFailed && !ep.TranscriptionExhausted:
		default:
			return false
		}
		if ep.TranscriptionNextAt != nil && ep.TranscriptionNextAt.After(now) {
			return false
		}
		return leaseFree(ep, now)
	}), nil
}

func (s *MemStore) ListAnalyzable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEpisodes(limit, func(ep models.Episode) bool {
		if ep.TranscriptionState != models.StateCompleted || ep.Transcript == nil || ep.Summary != nil || ep.SummaryFailed {
			return false
		}
		if ep.SummaryNextAt != nil && ep.SummaryNextAt.After(now) {
			return false
		}
		return leaseFree(ep, now)
	}), nil
}

func (s *MemStore) AcquireLease(ctx context.Context, episodeID int64, owner string, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if !ok || !leaseFree(ep, now) {
		return false, nil
	}
	ep.LeaseOwner = &owner
	ep.LeaseUntil = &until
	s.episodes[episodeID] = ep
	return true, nil
}

func (s *MemStore) ReleaseLease(ctx context.Context, episodeID int64, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeID]
	if ok && ep.LeaseOwner != nil && *ep.LeaseOwner == owner {
		ep.LeaseOwner = nil
		ep.LeaseUntil = nil
		s.episodes[episodeID] = ep
	}
	return nil
}

func (s *MemStore) GetJob(ctx context.Context, id string) (models.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return job, models.ErrNotFound
	}
	return job, nil
}

func (s *MemStore) ActiveJob(ctx context.Context, episodeID int64) (models.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.EpisodeID == episodeID && j.State.Active() {
			return j, nil
		}
	}
	return models.TranscriptionJob{}, models.ErrNotFound
}

func (s *MemStore) ListActiveJobs(ctx context.Context, limit int) ([]models.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TranscriptionJob
	for _, j := range s.jobs {
		if j.State.Active() {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ownedEpisode(id int64, owner string) (models.Episode, error) {
	ep, ok := s.episodes[id]
	if !ok {
		return ep, models.ErrNotFound
	}
	if ep.LeaseOwner == nil || *ep.LeaseOwner != owner {
		return ep, models.ErrConflict
	}
	return ep, nil
}

func clearLease(ep *models.Episode) {
	ep.LeaseOwner = nil
	ep.LeaseUntil = nil
}

func (s *MemStore) RecordSubmission(ctx context.Context, sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, err := s.ownedEpisode(sub.EpisodeID, sub.LeaseOwner)
	if err != nil {
		return err
	}
	if ep.TranscriptionState != sub.ExpectedState {
		return models.ErrConflict
	}
	for _, j := range s.jobs {
		if j.EpisodeID == sub.EpisodeID && j.State.Active() {
			return models.ErrConflict
		}
	}
	ep.TranscriptionState = models.StateSubmitted
	ep.TranscriptionAttempts = sub.Job.Attempt
	ep.TranscriptionError = nil
	ep.TranscriptionNextAt = nil
	clearLease(&ep)
	s.episodes[ep.ID] = ep
	s.jobs[sub.Job.ID] = sub.Job
	return nil
}

func (s *MemStore) RecordSubmitFailure(ctx context.Context, f models.SubmitFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, err := s.ownedEpisode(f.EpisodeID, f.LeaseOwner)
	if err != nil {
		return err
	}
	if ep.TranscriptionState != f.ExpectedState {
		return models.ErrConflict
	}
	if f.Exhausted {
		ep.TranscriptionState = models.StateFailed
	}
	reason := f.Reason
	ep.TranscriptionAttempts = f.Attempts
	ep.TranscriptionError = &reason
	ep.TranscriptionNextAt = f.NextAt
	ep.TranscriptionExhausted = f.Exhausted
	clearLease(&ep)
	s.episodes[ep.ID] = ep
	return nil
}

func (s *MemStore) RecordPoll(ctx context.Context, o models.PollOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[o.JobID]
	if !ok {
		return models.ErrNotFound
	}
	if job.State != o.ExpectedState {
		return models.ErrConflict
	}
	ep, err := s.ownedEpisode(o.EpisodeID, o.LeaseOwner)
	if err != nil {
		return err
	}

	polledAt := o.PolledAt
	job.State = o.State
	job.LastPolledAt = &polledAt
	job.PollErrors = o.PollErrors
	job.FailureReason = o.Reason
	s.jobs[job.ID] = job

	ep.TranscriptionState = o.State
	if o.Transcript != nil {
		ep.Transcript = o.Transcript
	}
	ep.TranscriptionError = nil
	if o.State == models.StateFailed {
		ep.TranscriptionError = o.Reason
	}
	ep.TranscriptionNextAt = o.NextAt
	ep.TranscriptionExhausted = o.Exhausted
	clearLease(&ep)
	s.episodes[ep.ID] = ep
	return nil
}

func (s *MemStore) RecordSummary(ctx context.Context, o models.SummaryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, err := s.ownedEpisode(o.EpisodeID, o.LeaseOwner)
	if err != nil {
		return err
	}
	if ep.Summary != nil {
		return models.ErrConflict
	}
	ep.Summary = o.Summary
	ep.SummaryAttempts = o.Attempts
	ep.SummaryError = o.Reason
	ep.SummaryNextAt = o.NextAt
	ep.SummaryFailed = o.Failed
	clearLease(&ep)
	s.episodes[ep.ID] = ep
	return nil
}

func (s *MemStore) ListCandidates(ctx context.Context, degraded bool) ([]models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Candidate
	for _, sub := range s.subs {
		if !sub.Active {
			continue
		}
		for _, ep := range s.episodes {
			if ep.PodcastID != sub.PodcastID || !ep.Notifiable(degraded) {
				continue
			}
			if _, done := s.processed[pairKey{sub.UserID, ep.ID}]; done {
				continue
			}
			out = append(out, models.Candidate{Subscription: sub, Episode: ep, PodcastTitle: s.podcasts[sub.PodcastID].Title})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subscription.UserID != out[j].Subscription.UserID {
			return out[i].Subscription.UserID < out[j].Subscription.UserID
		}
		if !out[i].Episode.PublishedAt.Equal(out[j].Episode.PublishedAt) {
			return out[i].Episode.PublishedAt.Before(out[j].Episode.PublishedAt)
		}
		return out[i].Episode.ID < out[j].Episode.ID
	})
	return out, nil
}

func (s *MemStore) LastNotified(ctx context.Context, userID int64, cadence models.Cadence) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, p := range s.processed {
		if p.UserID != userID || p.Cadence != cadence || p.Skipped {
			continue
		}
		if last == nil || p.SentAt.After(*last) {
			sentAt := p.SentAt
			last = &sentAt
		}
	}
	return last, nil
}

func (s *MemStore) MarkProcessed(ctx context.Context, records []models.ProcessedEpisode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkProcessedErr != nil {
		return 0, s.MarkProcessedErr
	}
	n := 0
	for _, r := range records {
		key := pairKey{r.UserID, r.EpisodeID}
		if _, ok := s.processed[key]; ok {
			continue
		}
		s.processed[key] = r
		n++
	}
	return n, nil
}
