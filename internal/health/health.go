// Package health aggregates component checks into a single report for the
// web API.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/service"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of a single checker
type Check struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ServiceReport is the lifecycle state of one registered service
type ServiceReport struct {
	Status service.Status `json:"status"`
	Uptime string         `json:"uptime"`
	Error  string         `json:"error,omitempty"`
}

// Report is the overall health report
type Report struct {
	Status    Status                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Checks    map[string]Check         `json:"checks"`
	Services  map[string]ServiceReport `json:"services,omitempty"`
}

// Checker is a single health check
type Checker interface {
	Name() string
	Check(ctx context.Context) Check
}

// ServiceStatuses lists the lifecycle state of registered services
type ServiceStatuses interface {
	GetAllStatuses() map[string]*service.ServiceStatus
}

// Manager runs registered checkers on demand
type Manager struct {
	checkers  []Checker
	services  ServiceStatuses
	startTime time.Time
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewManager creates a health manager; services may be nil
func NewManager(services ServiceStatuses) *Manager {
	return &Manager{
		services:  services,
		startTime: time.Now(),
		timeout:   3 * time.Second,
	}
}

// RegisterChecker registers a health checker
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs all checkers. The overall status is the worst individual status,
// and a service in the error state makes the report unhealthy.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	overall := StatusHealthy
	checks := make(map[string]Check, len(checkers))
	for _, checker := range checkers {
		check := checker.Check(ctx)
		if check.Name == "" {
			check.Name = checker.Name()
		}
		if check.Timestamp.IsZero() {
			check.Timestamp = time.Now()
		}
		checks[check.Name] = check
		overall = worst(overall, check.Status)
	}

	var services map[string]ServiceReport
	if m.services != nil {
		services = make(map[string]ServiceReport)
		for name, status := range m.services.GetAllStatuses() {
			report := ServiceReport{
				Status: status.GetStatus(),
				Uptime: status.GetUptime().Round(time.Second).String(),
			}
			if err := status.GetError(); err != nil {
				report.Error = err.Error()
			}
			if report.Status == service.StatusError {
				overall = StatusUnhealthy
			}
			services[name] = report
		}
	}

	return Report{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(m.startTime).Round(time.Second).String(),
		Checks:    checks,
		Services:  services,
	}
}

func worst(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
