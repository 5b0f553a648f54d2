package history

import (
	"context"
	"fmt"

	"github.com/Kabilash01/cricket-ai/internal/detector"
	"github.com/Kabilash01/cricket-ai/internal/logger"
	"github.com/Kabilash01/cricket-ai/internal/service"
)

// Service feeds detection events into the store for as long as it runs
type Service struct {
	*service.ServiceBase
	store  *Store
	cancel context.CancelFunc
}

// NewService wraps an opened store
func NewService(store *Store, log *logger.Logger) *Service {
	return &Service{
		ServiceBase: service.NewServiceBase("history", log),
		store:       store,
	}
}

// Store returns the underlying store
func (s *Service) Store() *Store {
	return s.store
}

// Start subscribes to detection events
func (s *Service) Start(ctx context.Context) error {
	bus := s.GetEventBus()
	if bus == nil {
		return fmt.Errorf("history service requires an event bus")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	bus.SubscribeWithHandler(ctx, service.EventTypeDetection, s.handleDetection, func(err error) {
		s.LogWarn("Failed to record detections", "error", err)
	})

	s.LogInfo("Run history enabled", "db_path", s.store.dbPath)
	return nil
}

// Stop unsubscribes and closes the database
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.store.Close()
}

func (s *Service) handleDetection(ctx context.Context, event service.Event) error {
	runID, _ := event.Data["run_id"].(string)
	dets, ok := event.Data["detections"].([]detector.Detection)
	if runID == "" || !ok {
		return fmt.Errorf("malformed detection event from %s", event.Source)
	}
	return s.store.RecordDetections(ctx, runID, dets)
}
