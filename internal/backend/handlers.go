package backend

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/urbancanopy/treedetect-go/internal/labelstudio"
)

// predictRequest is the ML backend prediction call. The labeling tool also
// sends project and label_config fields; only the tasks matter here.
type predictRequest struct {
	Tasks []labelstudio.Task `json:"tasks"`
}

// predictResponse carries one prediction per task, in task order.
type predictResponse struct {
	Results []labelstudio.Prediction `json:"results"`
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version"`
}

type setupResponse struct {
	ModelVersion string `json:"model_version"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:       "UP",
		ModelVersion: s.detector.ModelVersion(),
	})
}

// handleSetup answers the labeling tool's connection handshake.
func (s *Server) handleSetup(c echo.Context) error {
	return c.JSON(http.StatusOK, setupResponse{
		ModelVersion: s.detector.ModelVersion(),
	})
}

// handlePredict fetches each task's image, runs detection and returns the
// predictions in the annotation JSON shape.
func (s *Server) handlePredict(c echo.Context) error {
	var req predictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Tasks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no tasks in request")
	}

	resp := predictResponse{Results: make([]labelstudio.Prediction, 0, len(req.Tasks))}

	for i := range req.Tasks {
		task := &req.Tasks[i]
		ref := task.Data.Image
		if ref == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "task has no image reference")
		}

		if cached, found := s.cache.Get(ref); found {
			resp.Results = append(resp.Results, cached.(labelstudio.Prediction))
			continue
		}

		pred, err := s.predictOne(c, ref, task.ID)
		if err != nil {
			return err
		}

		s.cache.Set(ref, pred, predictionCacheTTL)
		resp.Results = append(resp.Results, pred)
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) predictOne(c echo.Context, ref string, taskID int64) (labelstudio.Prediction, error) {
	ctx := c.Request().Context()
	start := time.Now()

	data, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		s.log.Error("image fetch failed", "task", taskID, "image", ref, "error", err)
		return labelstudio.Prediction{}, echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch task image")
	}

	result, err := s.detector.DetectBytes(ctx, data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.Detection.InferenceErrors.Inc()
		}
		s.log.Error("inference failed", "task", taskID, "image", ref, "error", err)
		return labelstudio.Prediction{}, echo.NewHTTPError(http.StatusInternalServerError, "model inference failed")
	}

	if s.metrics != nil {
		s.metrics.Detection.InferenceDuration.
			WithLabelValues(s.detector.ModelVersion()).
			Observe(time.Since(start).Seconds())
		for i := range result.Detections {
			s.metrics.Detection.DetectionsTotal.
				WithLabelValues(result.Detections[i].Label).Inc()
		}
	}

	s.log.Debug("prediction ready",
		"task", taskID,
		"detections", len(result.Detections),
		"duration_ms", time.Since(start).Milliseconds())

	return labelstudio.FromDetections(result, s.detector.ModelVersion()), nil
}

// webhookEvent is the relevant slice of the labeling tool's webhook payload.
type webhookEvent struct {
	Action string `json:"action"`
}

// handleWebhook acknowledges annotation events without acting on them.
// Model updates from annotations are out of scope, but the endpoint must
// accept the calls so the labeling tool doesn't flag the backend as broken.
func (s *Server) handleWebhook(c echo.Context) error {
	var event webhookEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	s.log.Info("webhook event ignored", "action", event.Action)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
