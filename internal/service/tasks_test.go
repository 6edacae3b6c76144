package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"rediguard/internal/geo"
	"rediguard/internal/store/memory"
)

func newTestTaskManager() (*TaskManager, *memory.EventLog) {
	eventLog := memory.NewEventLog()
	return NewTaskManager(eventLog, NewGenerator(1), testLimits(), zap.NewNop()), eventLog
}

func waitForState(t *testing.T, m *TaskManager, state string) TaskStatus {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		status := m.Status()
		if status.State == state {
			return status
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %q, stuck at %q", state, status.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTaskManagerStartsIdle(t *testing.T) {
	m, _ := newTestTaskManager()

	status := m.Status()
	if status.State != TaskIdle {
		t.Errorf("initial state = %q, want idle", status.State)
	}
}

func TestSeedingCompletes(t *testing.T) {
	m, eventLog := newTestTaskManager()

	if err := m.StartSeeding(50, DefaultSeedAnomalyRate); err != nil {
		t.Fatalf("StartSeeding: %v", err)
	}

	status := waitForState(t, m, TaskCompleted)
	if status.Kind != TaskSeeding {
		t.Errorf("kind = %q, want seeding", status.Kind)
	}
	if status.Progress != 50 {
		t.Errorf("progress = %d, want 50", status.Progress)
	}

	length, _ := eventLog.Length(context.Background())
	if length != 50 {
		t.Errorf("event log length = %d, want 50", length)
	}
}

func TestSeedingLimit(t *testing.T) {
	m, _ := newTestTaskManager()

	err := m.StartSeeding(10001, DefaultSeedAnomalyRate)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if m.Status().State != TaskIdle {
		t.Error("rejected start changed state")
	}
}

func TestSeedingHonorsAnomalyRate(t *testing.T) {
	m, eventLog := newTestTaskManager()

	if err := m.StartSeeding(40, 1.0); err != nil {
		t.Fatalf("StartSeeding(rate=1.0): %v", err)
	}
	waitForState(t, m, TaskCompleted)
	for i, event := range eventLog.Events() {
		if !geo.IsHighRisk(event.Location) {
			t.Errorf("event %d at rate 1.0 has routine location %q", i, event.Location)
		}
	}

	m2, eventLog2 := newTestTaskManager()
	if err := m2.StartSeeding(40, 0); err != nil {
		t.Fatalf("StartSeeding(rate=0): %v", err)
	}
	waitForState(t, m2, TaskCompleted)
	for i, event := range eventLog2.Events() {
		if geo.IsHighRisk(event.Location) {
			t.Errorf("event %d at rate 0 has risky location %q", i, event.Location)
		}
	}
}

func TestAnomalyRateValidation(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.StartSeeding(10, 1.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("seed rate 1.5: expected ErrInvalidInput, got %v", err)
	}
	if err := m.StartStreaming(10, time.Minute, -0.1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("stream rate -0.1: expected ErrInvalidInput, got %v", err)
	}
	if m.Status().State != TaskIdle {
		t.Error("rejected start changed state")
	}
}

func TestStreamingLimits(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.StartStreaming(101, time.Minute, DefaultStreamAnomalyRate); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("rate over limit: expected ErrLimitExceeded, got %v", err)
	}
	if err := m.StartStreaming(10, 5*time.Hour, DefaultStreamAnomalyRate); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("duration over limit: expected ErrLimitExceeded, got %v", err)
	}
	if err := m.StartStreaming(0, time.Minute, DefaultStreamAnomalyRate); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero rate: expected ErrInvalidInput, got %v", err)
	}
}

func TestStreamingStops(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.StartStreaming(100, time.Hour, DefaultStreamAnomalyRate); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	waitForState(t, m, TaskRunning)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	status := m.Status()
	if status.State != TaskStopped {
		t.Errorf("state after stop = %q, want stopped", status.State)
	}
}

func TestStreamingSelfTerminates(t *testing.T) {
	m, eventLog := newTestTaskManager()

	// Duration shorter than one tick interval: the deadline fires first.
	if err := m.StartStreaming(60, 100*time.Millisecond, DefaultStreamAnomalyRate); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}

	waitForState(t, m, TaskCompleted)

	length, _ := eventLog.Length(context.Background())
	if length > 1 {
		t.Errorf("events emitted = %d, expected at most 1 in 100ms at 60/min", length)
	}
}

func TestTaskConflict(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.StartStreaming(100, time.Hour, DefaultStreamAnomalyRate); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	defer m.Stop()

	if err := m.StartSeeding(10, DefaultSeedAnomalyRate); !errors.Is(err, ErrTaskConflict) {
		t.Errorf("expected ErrTaskConflict, got %v", err)
	}
	if err := m.StartStreaming(10, time.Minute, DefaultStreamAnomalyRate); !errors.Is(err, ErrTaskConflict) {
		t.Errorf("expected ErrTaskConflict, got %v", err)
	}
}

func TestStopWithoutRunningTask(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.Stop(); !errors.Is(err, ErrTaskNotRunning) {
		t.Fatalf("expected ErrTaskNotRunning, got %v", err)
	}
}

func TestRestartAfterCompletion(t *testing.T) {
	m, _ := newTestTaskManager()

	if err := m.StartSeeding(5, DefaultSeedAnomalyRate); err != nil {
		t.Fatalf("StartSeeding: %v", err)
	}
	waitForState(t, m, TaskCompleted)

	if err := m.StartSeeding(5, DefaultSeedAnomalyRate); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
	waitForState(t, m, TaskCompleted)
}
