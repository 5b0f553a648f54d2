package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kabilash01/cricket-ai/internal/display"
	"github.com/Kabilash01/cricket-ai/internal/health"
	"github.com/Kabilash01/cricket-ai/internal/history"
)

const maxRunsLimit = 500

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "web-server",
		})
		return
	}

	report := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// handleStatus reports pipeline state, statistics and channel depths
func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.startTime)

	response := gin.H{
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"version":        s.version,
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	if s.pipeline != nil {
		status := s.pipeline.Status()
		response["pipeline"] = status
		response["fps"] = status.Stats.FPS
		response["avg_infer_ms"] = status.Stats.AvgLatencyMs()
	}
	if s.frames != nil {
		response["stream_clients"] = s.frames.Subscribers()
	}

	c.JSON(http.StatusOK, response)
}

// handleMJPEGStream streams annotated frames as multipart JPEG
func (s *Server) handleMJPEGStream(c *gin.Context) {
	if s.frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Streaming not available",
		})
		return
	}

	sub := s.frames.Subscribe()
	defer s.frames.Unsubscribe(sub)

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Pragma", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case frame := <-sub.Frames():
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame.JPEG))
			if _, err := w.Write(frame.JPEG); err != nil {
				return false
			}
			fmt.Fprintf(w, "\r\n")
			return true
		case <-sub.Done():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleSingleFrame returns the latest annotated frame
func (s *Server) handleSingleFrame(c *gin.Context) {
	if s.frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Streaming not available",
		})
		return
	}

	frame, err := s.frames.Latest()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, display.ErrNoFrame) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	c.Data(http.StatusOK, "image/jpeg", frame.JPEG)
}

// handleStop requests a user stop; the render stage picks it up on its next poll
func (s *Server) handleStop(c *gin.Context) {
	if s.frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Pipeline control not available",
		})
		return
	}

	s.frames.Cancel()
	s.LogInfo("Stop requested via API", "client_ip", c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

// handleListRuns lists recorded runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Run history not enabled",
		})
		return
	}

	limit := history.DefaultListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := s.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list runs: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunDetections returns per-class detection totals for a run
func (s *Server) handleRunDetections(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Run history not enabled",
		})
		return
	}

	runID := c.Param("id")
	counts, err := s.history.ClassCounts(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to load detections: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  runID,
		"classes": counts,
	})
}
