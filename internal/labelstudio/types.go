// Package labelstudio is a client for the labeling tool's REST API and the
// mapping from model detections to its annotation JSON format.
package labelstudio

// TaskData is the payload half of a task record. Only the image reference is
// read here; the schema is owned by the labeling tool.
type TaskData struct {
	Image string `json:"image"`
}

// Task is a labeling task as returned by GET /api/tasks.
type Task struct {
	ID               int64    `json:"id"`
	Data             TaskData `json:"data"`
	TotalPredictions int      `json:"total_predictions"`
}

// tasksResponse is the paginated task list envelope.
type tasksResponse struct {
	Total int    `json:"total"`
	Tasks []Task `json:"tasks"`
}

// RectangleValue is the percent-based bounding box of one region.
// The labeling tool requires box dimensions as percentages of the image.
type RectangleValue struct {
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	Width           float64  `json:"width"`
	Height          float64  `json:"height"`
	RectangleLabels []string `json:"rectanglelabels"`
}

// Region is a single annotated region within a prediction result.
// FromName and ToName must match the labeling interface control names.
type Region struct {
	ID       string         `json:"id,omitempty"`
	FromName string         `json:"from_name"`
	ToName   string         `json:"to_name"`
	Type     string         `json:"type"`
	Value    RectangleValue `json:"value"`
	Score    float64        `json:"score"`
}

// Prediction is a model-generated annotation for one task.
type Prediction struct {
	Result       []Region `json:"result"`
	ModelVersion string   `json:"model_version"`
	Score        float64  `json:"score,omitempty"`
}

// createPredictionRequest binds a prediction to its task and project, the
// shape POST /api/predictions expects.
type createPredictionRequest struct {
	Prediction
	Task    int64  `json:"task"`
	Project string `json:"project"`
}
