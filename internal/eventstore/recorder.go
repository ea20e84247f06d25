package eventstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/metrics"
)

// Recorder records confirmed detections independently of alert dispatch.
// Failures are logged and returned; callers treat them as non-fatal.
type Recorder struct {
	store   Store
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewRecorder wraps store. A positive timeout bounds each store call.
func NewRecorder(store Store, timeout time.Duration, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		timeout: timeout,
		metrics: m,
		logger:  logging.WithComponent("recorder"),
	}
}

func (r *Recorder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Record persists event and returns it with its persisted id.
func (r *Recorder) Record(ctx context.Context, event logic.FallEvent) (logic.FallEvent, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := r.store.Insert(ctx, event)
	if err != nil {
		r.metrics.RecordPersistenceError("insert")
		r.logger.Error().
			Err(err).
			Str("eventId", event.ID).
			Time("timestamp", event.Timestamp).
			Float32("probability", event.Probability).
			Msg("Failed to record fall event")
		return event, err
	}
	event.ID = id
	r.logger.Info().
		Str("eventId", id).
		Time("timestamp", event.Timestamp).
		Float32("probability", event.Probability).
		Msg("Fall event recorded")
	return event, nil
}

// List returns a snapshot of recorded events, most recent first.
func (r *Recorder) List(ctx context.Context) ([]logic.FallEvent, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	events, err := r.store.ListDesc(ctx)
	if err != nil {
		r.metrics.RecordPersistenceError("list")
		r.logger.Error().Err(err).Msg("Failed to list fall events")
		return nil, err
	}
	return events, nil
}

// Clear deletes every recorded event.
func (r *Recorder) Clear(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.DeleteAll(ctx); err != nil {
		r.metrics.RecordPersistenceError("delete")
		r.logger.Error().Err(err).Msg("Failed to clear fall events")
		return err
	}
	r.logger.Info().Msg("Fall events cleared")
	return nil
}
