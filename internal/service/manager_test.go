package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	if mgr.GetServiceCount() != 0 {
		t.Errorf("Expected 0 services, got %d", mgr.GetServiceCount())
	}

	if mgr.GetEventBus() == nil {
		t.Error("Event bus should be initialized")
	}
}

func TestManager_Register(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mockSvc := &mockService{name: "pipeline"}
	mgr.Register(mockSvc)

	if mgr.GetServiceCount() != 1 {
		t.Errorf("Expected 1 service, got %d", mgr.GetServiceCount())
	}

	status := mgr.GetServiceStatus("pipeline")
	if status == nil {
		t.Fatal("Service status should be created")
	}

	if status.GetStatus() != StatusStopped {
		t.Errorf("Expected status %s, got %s", StatusStopped, status.GetStatus())
	}
}

func TestManager_Register_WithEvents(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mockSvc := &mockServiceWithEvents{name: "web"}
	mgr.Register(mockSvc)

	if mockSvc.eventBus == nil {
		t.Error("Event bus should be set for service with events")
	}
}

func TestManager_Start(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mockSvc := &mockService{name: "pipeline"}
	mgr.Register(mockSvc)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := mgr.GetServiceStatus("pipeline")
	if !status.IsRunning() {
		t.Errorf("Expected status %s, got %s", StatusRunning, status.GetStatus())
	}
	if !mockSvc.isStarted() {
		t.Error("Service should have been started")
	}
}

func TestManager_Start_ServiceError(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	failing := &mockService{name: "failing", startError: errors.New("start failed")}
	after := &mockService{name: "after"}
	mgr.Register(failing)
	mgr.Register(after)

	err := mgr.Start(context.Background())
	if err == nil {
		t.Fatal("Start should report the failing service")
	}

	status := mgr.GetServiceStatus("failing")
	if status.GetStatus() != StatusError {
		t.Errorf("Expected status %s, got %s", StatusError, status.GetStatus())
	}
	if status.GetError() == nil {
		t.Error("Service should have an error")
	}
	if after.isStarted() {
		t.Error("Services after a failure must not be started")
	}
}

func TestManager_Shutdown_ReverseOrder(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	var mu sync.Mutex
	var stopOrder []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			stopOrder = append(stopOrder, name)
		}
	}

	for _, name := range []string{"history", "web", "pipeline"} {
		mgr.Register(&mockService{name: name, onStop: record(name)})
	}

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mgr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"pipeline", "web", "history"}
	if len(stopOrder) != len(want) {
		t.Fatalf("Expected %d services stopped, got %d", len(want), len(stopOrder))
	}
	for i := range want {
		if stopOrder[i] != want[i] {
			t.Errorf("Stop %d: expected %s, got %s", i, want[i], stopOrder[i])
		}
	}

	if mgr.GetServiceStatus("pipeline").GetStatus() != StatusStopped {
		t.Error("Pipeline should be stopped")
	}
}

func TestManager_Shutdown_Timeout(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mgr.Register(&mockService{name: "slow", stopDelay: 2 * time.Second})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := mgr.Shutdown(shutdownCtx); err == nil {
		t.Error("Shutdown should time out and return an error")
	}
}

func TestManager_GetAllStatuses(t *testing.T) {
	mgr := NewManager(logger.NewNopLogger())

	mgr.Register(&mockService{name: "service-1"})
	mgr.Register(&mockService{name: "service-2"})

	statuses := mgr.GetAllStatuses()
	if len(statuses) != 2 {
		t.Errorf("Expected 2 statuses, got %d", len(statuses))
	}
	if statuses["service-1"] == nil || statuses["service-2"] == nil {
		t.Error("Statuses should exist for every registered service")
	}
}

type mockService struct {
	name       string
	mu         sync.Mutex
	started    bool
	stopped    bool
	startError error
	stopDelay  time.Duration
	onStop     func()
}

func (m *mockService) Name() string {
	return m.name
}

func (m *mockService) Start(ctx context.Context) error {
	if m.startError != nil {
		return m.startError
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *mockService) Stop(ctx context.Context) error {
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}
	if m.onStop != nil {
		m.onStop()
	}
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return nil
}

func (m *mockService) isStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

type mockServiceWithEvents struct {
	name     string
	eventBus *EventBus
}

func (m *mockServiceWithEvents) Name() string                    { return m.name }
func (m *mockServiceWithEvents) Start(ctx context.Context) error { return nil }
func (m *mockServiceWithEvents) Stop(ctx context.Context) error  { return nil }
func (m *mockServiceWithEvents) SetEventBus(bus *EventBus)       { m.eventBus = bus }
