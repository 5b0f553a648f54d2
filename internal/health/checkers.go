package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Kabilash01/cricket-ai/internal/pipeline"
)

// dropRatioDegraded is the share of frames dropped at the frame channel above
// which the pipeline reports degraded
const dropRatioDegraded = 0.5

// PipelineStatus reports the pipeline's state
type PipelineStatus interface {
	Status() pipeline.Status
}

// PipelineChecker checks the running pipeline
type PipelineChecker struct {
	pipeline PipelineStatus
}

func NewPipelineChecker(p PipelineStatus) *PipelineChecker {
	return &PipelineChecker{pipeline: p}
}

func (c *PipelineChecker) Name() string {
	return "pipeline"
}

func (c *PipelineChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	st := c.pipeline.Status()
	check.Details["running"] = st.Running
	check.Details["fps"] = st.Stats.FPS
	check.Details["frames_dropped"] = st.Frames.Dropped
	check.Details["results_dropped"] = st.Results.Dropped
	if st.Device != "" {
		check.Details["device"] = st.Device
	}

	if !st.Running {
		if st.LastRun != nil && st.LastRun.Failed {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("Last run failed: %s", st.LastRun.Reason)
			return check
		}
		check.Status = StatusHealthy
		check.Message = "Pipeline idle"
		return check
	}

	offered := st.Frames.Accepted + st.Frames.Dropped
	if offered > 0 {
		ratio := float64(st.Frames.Dropped) / float64(offered)
		check.Details["frame_drop_ratio"] = ratio
		if ratio > dropRatioDegraded {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Inference falling behind, %.0f%% of frames dropped", ratio*100)
			return check
		}
	}

	check.Status = StatusHealthy
	check.Message = "Pipeline running"
	return check
}

// Pinger is a store that can verify its connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker checks run history storage
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	return check
}

// InferenceServiceChecker checks the remote inference service
type InferenceServiceChecker struct {
	serviceURL string
	client     *http.Client
}

func NewInferenceServiceChecker(serviceURL string) *InferenceServiceChecker {
	return &InferenceServiceChecker{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *InferenceServiceChecker) Name() string {
	return "inference_service"
}

func (c *InferenceServiceChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"url": c.serviceURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health/ready", nil)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Failed to create request: %v", err)
		return check
	}

	resp, err := c.client.Do(req)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Inference service unreachable: %v", err)
		return check
	}
	defer resp.Body.Close()

	check.Details["status_code"] = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Inference service returned status %d", resp.StatusCode)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Inference service is reachable"
	return check
}
