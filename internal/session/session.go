// Package session orchestrates fall monitoring: it owns the sensor
// subscription, the window buffer, the classifier and the decision state
// machine, and hands confirmed falls to a worker that records and
// dispatches them.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/fall-sensor/internal/alert"
	"github.com/sweeney/fall-sensor/internal/contacts"
	"github.com/sweeney/fall-sensor/internal/eventstore"
	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/metrics"
	"github.com/sweeney/fall-sensor/internal/model"
	"github.com/sweeney/fall-sensor/internal/sensor"
	"github.com/sweeney/fall-sensor/internal/status"
)

// State is the monitoring session lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

var allStates = []string{
	string(StateStopped), string(StateStarting), string(StateRunning), string(StateStopping),
}

// DefaultQueueSize is the number of detections buffered for the worker.
const DefaultQueueSize = 16

// Announcer publishes confirmed falls to interested listeners.
type Announcer interface {
	PublishFall(event logic.FallEvent) error
}

// Config holds session tunables.
type Config struct {
	ModelPath  string
	Threshold  float32
	Cooldown   time.Duration
	WindowSize int
	WindowMode logic.WindowMode

	// QueueSize bounds detections waiting for the worker.
	QueueSize int

	// JobTimeout bounds recording and dispatch for one detection; 0 disables.
	JobTimeout time.Duration

	// LoadModel overrides loading from ModelPath.
	LoadModel func() (model.Classifier, error)
}

// Deps are the collaborators the session drives. Announcer, Tracker and
// Metrics are optional.
type Deps struct {
	Feed       sensor.Feed
	Directory  contacts.Directory
	Dispatcher *alert.Dispatcher
	Recorder   *eventstore.Recorder
	Announcer  Announcer
	Tracker    *status.Tracker
	Metrics    *metrics.Metrics

	// NewID assigns FallEvent ids; uuid v4 when nil.
	NewID func() string
}

type job struct {
	event logic.FallEvent
}

// Session is the monitoring session. Start and Stop are idempotent.
// Ingest is safe to call from any goroutine; calls are serialized.
type Session struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	lifecycle sync.Mutex // serializes Start and Stop

	mu              sync.Mutex // guards everything below; held for the whole ingestion path
	state           State
	classifier      model.Classifier
	modelLoaded     bool
	buffer          *logic.WindowBuffer
	detector        *logic.Detector
	jobs            chan job
	inferenceErrors int

	workers sync.WaitGroup
}

// New creates a stopped session.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Feed == nil || deps.Directory == nil || deps.Dispatcher == nil || deps.Recorder == nil {
		return nil, errors.New("session: feed, directory, dispatcher and recorder are required")
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = logic.DefaultWindowSize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.NewString() }
	}

	buffer, err := logic.NewWindowBuffer(cfg.WindowSize, cfg.WindowMode)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		deps:     deps,
		logger:   logging.WithComponent("session"),
		state:    StateStopped,
		buffer:   buffer,
		detector: logic.NewDetector(cfg.Threshold, cfg.Cooldown, time.Now()),
	}
	s.publishState(StateStopped)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ModelLoaded reports whether the last Start loaded a usable classifier.
func (s *Session) ModelLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelLoaded
}

func (s *Session) setState(st State) {
	s.state = st
	s.publishState(st)
}

func (s *Session) publishState(st State) {
	s.deps.Metrics.SetSessionState(string(st), allStates)
	if s.deps.Tracker != nil {
		s.deps.Tracker.SetSession(string(st))
	}
}

// Start loads the model, subscribes to every sensor source and begins
// accepting samples. A model that fails to load leaves the session running
// in degraded mode: samples are windowed but every inference fails.
// Missing sensor sources are logged and skipped.
func (s *Session) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if st := s.state; st != StateStopped {
		s.mu.Unlock()
		s.logger.Debug().Str("state", string(st)).Msg("start ignored")
		return
	}
	s.setState(StateStarting)
	s.mu.Unlock()

	classifier, loaded := s.loadModel()

	jobs := make(chan job, s.cfg.QueueSize)
	s.workers.Add(1)
	go s.work(jobs)

	s.mu.Lock()
	s.classifier = classifier
	s.modelLoaded = loaded
	s.buffer.Reset()
	s.jobs = jobs
	s.mu.Unlock()

	subscribed := 0
	for _, src := range sensor.Sources {
		if err := s.deps.Feed.Subscribe(src, s.Ingest); err != nil {
			s.reportError(err)
			if errors.Is(err, sensor.ErrSensorUnavailable) {
				s.logger.Warn().Err(err).Str("source", string(src)).Msg("sensor unavailable, continuing without it")
			} else {
				s.logger.Error().Err(err).Str("source", string(src)).Msg("sensor subscribe failed")
			}
			continue
		}
		subscribed++
	}
	if subscribed == 0 {
		s.logger.Warn().Msg("no sensor sources available")
	}

	s.mu.Lock()
	s.setState(StateRunning)
	s.mu.Unlock()

	s.logger.Info().
		Bool("modelLoaded", loaded).
		Int("sources", subscribed).
		Float32("threshold", s.cfg.Threshold).
		Dur("cooldown", s.cfg.Cooldown).
		Msg("monitoring started")
}

func (s *Session) loadModel() (model.Classifier, bool) {
	load := s.cfg.LoadModel
	if load == nil {
		load = func() (model.Classifier, error) {
			e, err := model.LoadFile(s.cfg.ModelPath)
			if err != nil {
				return nil, err
			}
			if e.InputSize() != s.cfg.WindowSize {
				return nil, &model.ModelError{
					Op:  "load",
					Err: fmt.Errorf("%w: model expects %d inputs, window is %d", model.ErrShape, e.InputSize(), s.cfg.WindowSize),
				}
			}
			return e, nil
		}
	}

	c, err := load()
	if err != nil || c == nil {
		if err == nil {
			err = &model.ModelError{Op: "load", Err: model.ErrUnavailable}
		}
		s.reportError(err)
		s.deps.Metrics.SetModelLoaded(false)
		if s.deps.Tracker != nil {
			s.deps.Tracker.SetModelLoaded(false)
		}
		s.logger.Error().Err(err).Str("path", s.cfg.ModelPath).Msg("model unavailable, detection disabled")
		return model.Unavailable{Cause: err}, false
	}

	s.deps.Metrics.SetModelLoaded(true)
	if s.deps.Tracker != nil {
		s.deps.Tracker.SetModelLoaded(true)
	}
	return c, true
}

// Stop unsubscribes from the sensor feed and discards the partial window.
// Detections already handed to the worker still complete.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.setState(StateStopping)
	s.mu.Unlock()

	if err := s.deps.Feed.Unsubscribe(); err != nil {
		s.logger.Warn().Err(err).Msg("sensor unsubscribe failed")
	}

	s.mu.Lock()
	s.buffer.Reset()
	close(s.jobs)
	s.jobs = nil
	s.setState(StateStopped)
	s.mu.Unlock()

	s.logger.Info().Msg("monitoring stopped")
}

// Close stops the session and waits for pending detections to be recorded
// and dispatched.
func (s *Session) Close() {
	s.Stop()
	s.workers.Wait()
}

// Ingest feeds one sample through the pipeline. Samples delivered while
// the session is not running are dropped.
func (s *Session) Ingest(sample logic.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		s.deps.Metrics.RecordRejectedSample()
		return
	}
	s.deps.Metrics.RecordSample(string(sample.Source))

	window, ok := s.buffer.Push(sample)
	if !ok {
		return
	}
	s.deps.Metrics.RecordWindow()

	start := time.Now()
	p, err := s.infer(window)
	s.deps.Metrics.RecordInference(err, time.Since(start).Seconds())
	if err != nil {
		s.inferenceErrors++
		s.logger.Warn().Err(err).Msg("inference failed, window discarded")
		s.updateStatus()
		return
	}

	before := s.detector.CountsSnapshot().Suppressed
	event := s.detector.Process(logic.Input{Probability: p, Time: sample.Time})
	if s.detector.CountsSnapshot().Suppressed > before {
		s.deps.Metrics.RecordSuppressed()
		s.logger.Debug().Float32("probability", p).Msg("detection suppressed by cooldown")
	}
	s.updateStatus()
	if event == nil {
		return
	}

	event.ID = s.deps.NewID()
	s.deps.Metrics.RecordDetection()
	if s.deps.Tracker != nil {
		s.deps.Tracker.SetLastDetection(*event)
	}
	s.logger.Warn().
		Str("eventId", event.ID).
		Float32("probability", event.Probability).
		Time("timestamp", event.Timestamp).
		Msg("fall detected")

	s.enqueue(job{event: *event})
}

// infer runs the classifier and rejects probabilities outside [0,1].
func (s *Session) infer(w logic.Window) (float32, error) {
	p, err := s.classifier.Infer(w)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(float64(p)) || p < 0 || p > 1 {
		return 0, &model.InferenceError{Err: fmt.Errorf("%w: %v", model.ErrOutOfRange, p)}
	}
	return p, nil
}

// enqueue hands a detection to the worker. A full queue spills to a fresh
// goroutine so ingestion never blocks and no detection is dropped.
func (s *Session) enqueue(j job) {
	select {
	case s.jobs <- j:
	default:
		s.logger.Warn().Str("eventId", j.event.ID).Msg("dispatch queue full, handling detection inline")
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.handle(j)
		}()
	}
}

func (s *Session) work(jobs <-chan job) {
	defer s.workers.Done()
	for j := range jobs {
		s.handle(j)
	}
}

// handle records, dispatches and announces one detection. Recording and
// dispatch run concurrently and neither waits on the other's outcome.
func (s *Session) handle(j job) {
	ctx := context.Background()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	event := j.event

	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.deps.Recorder.Record(ctx, event); err != nil {
			s.reportError(err)
		}
		return nil
	})
	g.Go(func() error {
		recipients, err := s.deps.Directory.Contacts(ctx)
		if err != nil {
			s.reportError(err)
			s.logger.Error().Err(err).Str("eventId", event.ID).Msg("could not read emergency contacts")
			return nil
		}
		report := s.deps.Dispatcher.Dispatch(ctx, event, recipients)
		if s.deps.Tracker != nil {
			s.deps.Tracker.SetLastDispatch(status.Dispatch{
				EventID:   report.EventID,
				Attempted: report.Attempted,
				Delivered: report.Delivered,
			})
		}
		return nil
	})
	if s.deps.Announcer != nil {
		g.Go(func() error {
			if err := s.deps.Announcer.PublishFall(event); err != nil {
				s.logger.Warn().Err(err).Str("eventId", event.ID).Msg("fall announcement failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// CheckHeartbeat returns heartbeat data when interval has elapsed.
func (s *Session) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.CheckHeartbeat(now, interval)
}

// Counts returns the decision counters and the number of failed inferences.
func (s *Session) Counts() (logic.DecisionCounts, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.CountsSnapshot(), s.inferenceErrors
}

// updateStatus must be called with mu held.
func (s *Session) updateStatus() {
	if s.deps.Tracker == nil {
		return
	}
	s.deps.Tracker.Update(s.detector.CountsSnapshot(), s.buffer.WindowsFilled(), s.inferenceErrors)
}

func (s *Session) reportError(err error) {
	if s.deps.Tracker != nil {
		s.deps.Tracker.SetError(err)
	}
}
