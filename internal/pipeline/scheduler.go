package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// Batch is one delivery: a single episode for immediate subscriptions, or
// every pending episode of a user's daily or weekly subscriptions.
type Batch struct {
	UserID  int64
	Cadence models.Cadence
	Items   []models.Candidate
}

// NotifyReport summarizes one notification pass.
type NotifyReport struct {
	Batches   int
	Delivered int
	Failed    int
	Recorded  int
	Skipped   int
}

// Scheduler decides which (user, episode) notifications are due and sends
// them. A ProcessedEpisode is recorded only after the sink confirms, so a
// crash in between causes a repeat delivery, never a lost one.
type Scheduler struct {
	store Store
	sink  DeliverySink
	opts  Options
}

func NewScheduler(store Store, sink DeliverySink, opts Options) *Scheduler {
	return &Scheduler{store: store, sink: sink, opts: opts.withDefaults()}
}

type userCadence struct {
	userID  int64
	cadence models.Cadence
}

// ComputeDue returns the batches that should be delivered at now.
func (s *Scheduler) ComputeDue(ctx context.Context, now time.Time) ([]Batch, error) {
	batches, _, err := s.plan(ctx, now)
	return batches, err
}

// plan also returns candidates that are skipped for good because they
// predate the subscription by more than the backlog window.
func (s *Scheduler) plan(ctx context.Context, now time.Time) ([]Batch, []models.Candidate, error) {
	candidates, err := s.store.ListCandidates(ctx, s.opts.Degraded)
	if err != nil {
		return nil, nil, fmt.Errorf("list notification candidates: %w", err)
	}

	var batches []Batch
	var skipped []models.Candidate
	grouped := make(map[userCadence][]models.Candidate)
	var order []userCadence

	for _, c := range candidates {
		if !c.Episode.Notifiable(s.opts.Degraded) || !c.Subscription.Active {
			continue
		}
		if s.opts.Backlog > 0 && c.Episode.PublishedAt.Before(c.Subscription.CreatedAt.Add(-s.opts.Backlog)) {
			skipped = append(skipped, c)
			continue
		}
		if c.Subscription.Cadence == models.CadenceImmediate {
			batches = append(batches, Batch{UserID: c.Subscription.UserID, Cadence: models.CadenceImmediate, Items: []models.Candidate{c}})
			continue
		}
		key := userCadence{userID: c.Subscription.UserID, cadence: c.Subscription.Cadence}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], c)
	}

	for _, key := range order {
		items := grouped[key]
		w, err := s.window(ctx, key, items)
		if err != nil {
			return nil, nil, err
		}
		if !IsDue(w.start, key.cadence, w.last, w.ready, now) {
			log.Debug().Int64("user_id", key.userID).Str("cadence", string(key.cadence)).Time("due_at", DueAt(w.start, key.cadence, w.last, w.ready)).Msg("Batch not due yet")
			continue
		}
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Episode.PublishedAt.Before(items[j].Episode.PublishedAt)
		})
		batches = append(batches, Batch{UserID: key.userID, Cadence: key.cadence, Items: items})
	}
	return batches, skipped, nil
}

type batchWindow struct {
	start time.Time
	last  time.Time
	ready time.Time
}

// window collects what decides whether a daily or weekly batch is due: the
// earliest start among the subscriptions involved, the last delivery for
// the user's cadence and when the oldest pending episode became ready.
func (s *Scheduler) window(ctx context.Context, key userCadence, items []models.Candidate) (batchWindow, error) {
	var w batchWindow
	last, err := s.store.LastNotified(ctx, key.userID, key.cadence)
	if err != nil {
		return w, fmt.Errorf("last notification for user %d: %w", key.userID, err)
	}
	if last != nil {
		w.last = *last
	}
	w.start = items[0].Subscription.CreatedAt
	w.ready = items[0].Episode.ReadyAt()
	for _, c := range items[1:] {
		if c.Subscription.CreatedAt.Before(w.start) {
			w.start = c.Subscription.CreatedAt
		}
		if r := c.Episode.ReadyAt(); r.Before(w.ready) {
			w.ready = r
		}
	}
	return w, nil
}

// Run delivers every due batch. Delivery failures leave the pairs pending
// for the next pass.
func (s *Scheduler) Run(ctx context.Context) (NotifyReport, error) {
	var report NotifyReport
	now := s.opts.Now()

	batches, skipped, err := s.plan(ctx, now)
	if err != nil {
		return report, err
	}

	if len(skipped) > 0 {
		records := make([]models.ProcessedEpisode, 0, len(skipped))
		for _, c := range skipped {
			records = append(records, models.ProcessedEpisode{
				UserID:    c.Subscription.UserID,
				EpisodeID: c.Episode.ID,
				Cadence:   c.Subscription.Cadence,
				Skipped:   true,
				SentAt:    now,
			})
		}
		n, err := s.store.MarkProcessed(ctx, records)
		if err != nil {
			return report, fmt.Errorf("mark skipped backlog: %w", err)
		}
		report.Skipped = n
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Batches++

		if err := s.deliver(ctx, b, &report); err != nil {
			report.Failed++
			log.Warn().Err(err).Int64("user_id", b.UserID).Str("cadence", string(b.Cadence)).Int("episodes", len(b.Items)).Msg("Delivery failed, will retry next pass")
		}
	}

	log.Info().Int("batches", report.Batches).Int("delivered", report.Delivered).Int("failed", report.Failed).Int("recorded", report.Recorded).Int("skipped", report.Skipped).Msg("Notification pass finished")
	return report, nil
}

func (s *Scheduler) deliver(ctx context.Context, b Batch, report *NotifyReport) error {
	payload := Render(b)
	conf, err := s.sink.Deliver(ctx, b.UserID, payload)
	if err != nil {
		return &DeliveryError{UserID: b.UserID, Err: err}
	}
	report.Delivered++

	sentAt := conf.DeliveredAt
	if sentAt.IsZero() {
		sentAt = s.opts.Now()
	}
	records := make([]models.ProcessedEpisode, 0, len(b.Items))
	for _, item := range b.Items {
		records = append(records, models.ProcessedEpisode{
			UserID:     b.UserID,
			EpisodeID:  item.Episode.ID,
			Cadence:    b.Cadence,
			Degraded:   item.Episode.Summary == nil,
			DeliveryID: conf.ID,
			SentAt:     sentAt,
		})
	}

	n, err := s.store.MarkProcessed(ctx, records)
	if err != nil {
		// Delivered but not recorded: the next pass repeats it with the same key.
		log.Error().Err(err).Int64("user_id", b.UserID).Str("idempotency_key", payload.IdempotencyKey).Msg("Failed to record delivered notifications")
		return nil
	}
	if n < len(records) {
		log.Warn().Int64("user_id", b.UserID).Int("new", n).Int("total", len(records)).Msg("Some notifications were already recorded by another pass")
	}
	report.Recorded += n
	return nil
}
