package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rediguard/internal/config"
	"rediguard/internal/metrics"
	"rediguard/internal/store"
)

// Task lifecycle states. A manager runs at most one task at a time.
const (
	TaskIdle      = "idle"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskStopped   = "stopped"
	TaskFailed    = "failed"
)

// Task kinds.
const (
	TaskSeeding   = "seeding"
	TaskStreaming = "streaming"
)

// seedWindow spreads seeded timestamps over the trailing month.
const seedWindow = 30 * 24 * time.Hour

// DefaultSeedAnomalyRate matches the historical baseline: roughly one event
// in ten deviates.
const DefaultSeedAnomalyRate = 0.1

// DefaultStreamAnomalyRate is the live-traffic anomaly mix.
const DefaultStreamAnomalyRate = 0.15

// TaskStatus is a point-in-time snapshot of the manager.
type TaskStatus struct {
	State     string `json:"state"`
	Kind      string `json:"kind,omitempty"`
	StartedAt int64  `json:"started_at,omitempty"`
	Progress  int    `json:"progress"`
	Total     int    `json:"total,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TaskManager owns the demo data background tasks. Exactly one task runs at
// a time; a finished task's terminal state stays visible until the next
// start.
type TaskManager struct {
	mu        sync.Mutex
	state     string
	kind      string
	startedAt time.Time
	progress  int
	total     int
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}

	eventLog  store.EventLog
	generator *Generator
	limits    config.LimitsConfig
	logger    *zap.Logger
}

func NewTaskManager(eventLog store.EventLog, generator *Generator, limits config.LimitsConfig, logger *zap.Logger) *TaskManager {
	return &TaskManager{
		state:     TaskIdle,
		eventLog:  eventLog,
		generator: generator,
		limits:    limits,
		logger:    logger,
	}
}

// StartSeeding launches a background task that appends numEvents historical
// events spread over the past month, with the given fraction of anomalies.
func (m *TaskManager) StartSeeding(numEvents int, anomalyRate float64) error {
	if numEvents <= 0 {
		return fmt.Errorf("%w: num_events must be positive", ErrInvalidInput)
	}
	if numEvents > m.limits.MaxSeedEvents {
		return fmt.Errorf("%w: num_events %d exceeds maximum %d",
			ErrLimitExceeded, numEvents, m.limits.MaxSeedEvents)
	}
	if anomalyRate < 0 || anomalyRate > 1 {
		return fmt.Errorf("%w: anomaly_rate %g outside [0, 1]", ErrInvalidInput, anomalyRate)
	}

	ctx, err := m.begin(TaskSeeding, numEvents)
	if err != nil {
		return err
	}

	go m.run(ctx, func(ctx context.Context) error {
		return m.seed(ctx, numEvents, anomalyRate)
	})

	m.logger.Info("Seeding task started",
		zap.Int("num_events", numEvents),
		zap.Float64("anomaly_rate", anomalyRate),
	)
	return nil
}

// StartStreaming launches a background task that emits events at the given
// rate until the duration elapses or Stop is called.
func (m *TaskManager) StartStreaming(eventsPerMinute int, duration time.Duration, anomalyRate float64) error {
	if eventsPerMinute <= 0 {
		return fmt.Errorf("%w: events_per_minute must be positive", ErrInvalidInput)
	}
	if eventsPerMinute > m.limits.MaxEventsPerMinute {
		return fmt.Errorf("%w: events_per_minute %d exceeds maximum %d",
			ErrLimitExceeded, eventsPerMinute, m.limits.MaxEventsPerMinute)
	}
	if duration <= 0 || duration > m.limits.MaxStreamDuration {
		return fmt.Errorf("%w: duration %s outside allowed range (0, %s]",
			ErrLimitExceeded, duration, m.limits.MaxStreamDuration)
	}
	if anomalyRate < 0 || anomalyRate > 1 {
		return fmt.Errorf("%w: anomaly_rate %g outside [0, 1]", ErrInvalidInput, anomalyRate)
	}

	ctx, err := m.begin(TaskStreaming, 0)
	if err != nil {
		return err
	}

	go m.run(ctx, func(ctx context.Context) error {
		return m.stream(ctx, eventsPerMinute, duration, anomalyRate)
	})

	m.logger.Info("Streaming task started",
		zap.Int("events_per_minute", eventsPerMinute),
		zap.Duration("duration", duration),
		zap.Float64("anomaly_rate", anomalyRate),
	)
	return nil
}

// Stop requests cooperative cancellation of the running task and waits for
// it to wind down.
func (m *TaskManager) Stop() error {
	m.mu.Lock()
	if m.state != TaskRunning {
		m.mu.Unlock()
		return ErrTaskNotRunning
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Status returns a snapshot of the current or most recent task.
func (m *TaskManager) Status() TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := TaskStatus{
		State:    m.state,
		Kind:     m.kind,
		Progress: m.progress,
		Total:    m.total,
	}
	if !m.startedAt.IsZero() {
		status.StartedAt = m.startedAt.Unix()
	}
	if m.lastErr != nil {
		status.Error = m.lastErr.Error()
	}
	return status
}

// begin transitions Idle (or any terminal state) to Running.
func (m *TaskManager) begin(kind string, total int) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == TaskRunning {
		return nil, ErrTaskConflict
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.state = TaskRunning
	m.kind = kind
	m.startedAt = time.Now()
	m.progress = 0
	m.total = total
	m.lastErr = nil
	m.cancel = cancel
	m.done = make(chan struct{})
	return ctx, nil
}

func (m *TaskManager) run(ctx context.Context, fn func(context.Context) error) {
	err := fn(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(m.done)

	switch {
	case ctx.Err() != nil:
		m.state = TaskStopped
	case err == nil:
		m.state = TaskCompleted
	default:
		m.state = TaskFailed
		m.lastErr = err
		m.logger.Error("Background task failed",
			zap.String("kind", m.kind),
			zap.Error(err),
		)
	}
	m.cancel()
}

func (m *TaskManager) seed(ctx context.Context, numEvents int, anomalyRate float64) error {
	now := time.Now()
	for i := 0; i < numEvents; i++ {
		if ctx.Err() != nil {
			return nil
		}

		event := m.generator.GenerateHistorical(now, seedWindow, anomalyRate)
		if _, err := m.eventLog.Append(ctx, event); err != nil {
			return err
		}
		metrics.EventsIngestedTotal.WithLabelValues("seed").Inc()

		m.mu.Lock()
		m.progress = i + 1
		m.mu.Unlock()

		if (i+1)%100 == 0 {
			m.logger.Info("Seeding progress",
				zap.Int("created", i+1),
				zap.Int("total", numEvents),
			)
		}
	}
	return nil
}

func (m *TaskManager) stream(ctx context.Context, eventsPerMinute int, duration time.Duration, anomalyRate float64) error {
	metrics.StreamingActive.Set(1)
	defer metrics.StreamingActive.Set(0)

	interval := time.Minute / time.Duration(eventsPerMinute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-ticker.C:
			event := m.generator.Generate(time.Now(), anomalyRate)
			if _, err := m.eventLog.Append(ctx, event); err != nil {
				return err
			}
			metrics.EventsIngestedTotal.WithLabelValues("stream").Inc()

			m.mu.Lock()
			m.progress++
			m.mu.Unlock()
		}
	}
}
