package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-studygen/internal/platform/apierr"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/realtime"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/pipeline"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const heartbeatEvery = 15 * time.Second

type handlers struct {
	log      *logger.Logger
	svc      Extractor
	hub      *realtime.Hub
	ready    func(ctx context.Context) error
	maxBytes int64
}

type documentRequest struct {
	Content    string   `json:"content"`
	SourceName string   `json:"source_name"`
	Model      string   `json:"model,omitempty"`
	Tasks      []string `json:"tasks,omitempty"`
}

type extractResponse struct {
	Task  records.Task `json:"task"`
	Count int          `json:"count"`
	Items any          `json:"items"`
}

func (h *handlers) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handlers) readyz(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			respondError(c, http.StatusServiceUnavailable, "not_ready", err)
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

// decode reads a JSON body no larger than maxBytes.
func (h *handlers) decode(c *gin.Context, dst any) error {
	body := c.Request.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBytes)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apierr.New(http.StatusRequestEntityTooLarge, "request_too_large", fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return apierr.New(http.StatusBadRequest, "invalid_json", errors.New("request body is empty"))
		default:
			return apierr.New(http.StatusBadRequest, "invalid_json", err)
		}
	}
	return nil
}

func (h *handlers) process(c *gin.Context) {
	var req documentRequest
	if err := h.decode(c, &req); err != nil {
		respondAPIError(c, err)
		return
	}
	tasks := make([]records.Task, 0, len(req.Tasks))
	for _, raw := range req.Tasks {
		t, ok := records.ParseTask(raw)
		if !ok {
			respondError(c, http.StatusBadRequest, "unknown_task", fmt.Errorf("unknown task %q", raw))
			return
		}
		tasks = append(tasks, t)
	}

	res := h.svc.ProcessDocument(c.Request.Context(), req.Content, tasks, pipeline.CallOptions{
		SourceName: strings.TrimSpace(req.SourceName),
		Model:      req.Model,
	})
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) extract(c *gin.Context) {
	task, ok := records.ParseTask(c.Param("task"))
	if !ok {
		respondError(c, http.StatusNotFound, "unknown_task", fmt.Errorf("unknown task %q", c.Param("task")))
		return
	}
	var req documentRequest
	if err := h.decode(c, &req); err != nil {
		respondAPIError(c, err)
		return
	}
	items, n, err := h.svc.Extract(c.Request.Context(), task, req.Content, pipeline.CallOptions{
		SourceName: strings.TrimSpace(req.SourceName),
		Model:      req.Model,
	})
	if err != nil {
		respondAPIError(c, pipelineError(err))
		return
	}
	c.JSON(http.StatusOK, extractResponse{Task: task, Count: n, Items: items})
}

func (h *handlers) analyze(c *gin.Context) {
	var req documentRequest
	if err := h.decode(c, &req); err != nil {
		respondAPIError(c, err)
		return
	}
	a, err := h.svc.Analyze(c.Request.Context(), req.Content, pipeline.CallOptions{
		SourceName: strings.TrimSpace(req.SourceName),
		Model:      req.Model,
	})
	if err != nil {
		respondAPIError(c, pipelineError(err))
		return
	}
	c.JSON(http.StatusOK, a)
}

func pipelineError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrEmptyContent):
		return apierr.New(http.StatusUnprocessableEntity, "empty_content", err)
	case errors.Is(err, pipeline.ErrUnknownTask):
		return apierr.New(http.StatusNotFound, "unknown_task", err)
	}
	return err
}

// events streams progress for one job channel as server-sent events until
// the client goes away.
func (h *handlers) events(c *gin.Context) {
	channel := strings.TrimSpace(c.Param("channel"))
	if channel == "" {
		respondError(c, http.StatusBadRequest, "invalid_channel", errors.New("channel required"))
		return
	}
	client := h.hub.NewClient()
	h.hub.Subscribe(client, channel)
	defer h.hub.CloseClient(client)
	log := h.log.With("client_id", client.ID.String(), "channel", channel)
	log.Debug("event stream open")

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream closed", "error", ctx.Err())
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			w.Flush()
		case ev, ok := <-client.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				log.Warn("marshal event failed", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			w.Flush()
		}
	}
}
