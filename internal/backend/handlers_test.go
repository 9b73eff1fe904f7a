package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/observability"
	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

type fakeDetector struct {
	result yolo.Result
	err    error
	calls  int
}

func (f *fakeDetector) DetectBytes(_ context.Context, _ []byte) (yolo.Result, error) {
	f.calls++
	if f.err != nil {
		return yolo.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeDetector) ModelVersion() string { return "tree-yolov5s-test" }

type fakeFetcher struct {
	data  map[string][]byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data[ref], nil
}

func newTestServer(t *testing.T, detector Detector, fetcher Fetcher) *Server {
	t.Helper()
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Server.Host = "127.0.0.1"
	settings.Server.Port = 0

	return New(settings, detector, fetcher, metrics)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFetcher{})

	for _, path := range []string{"/", "/health"} {
		rec := doRequest(s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "UP", resp["status"])
		assert.Equal(t, "tree-yolov5s-test", resp["model_version"])
	}
}

func TestSetup(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFetcher{})

	rec := doRequest(s, http.MethodPost, "/setup", `{"project":"7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tree-yolov5s-test")
}

func TestPredict(t *testing.T) {
	detector := &fakeDetector{
		result: yolo.Result{
			ImageWidth:  800,
			ImageHeight: 600,
			Detections: []yolo.Detection{
				{Label: "tree", Confidence: 0.9, Box: image.Rect(80, 60, 480, 360)},
			},
		},
	}
	fetcher := &fakeFetcher{data: map[string][]byte{"s3://b/a.jpg": []byte("img")}}
	s := newTestServer(t, detector, fetcher)

	body := `{"tasks":[{"id":11,"data":{"image":"s3://b/a.jpg"}}]}`
	rec := doRequest(s, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []struct {
			ModelVersion string  `json:"model_version"`
			Score        float64 `json:"score"`
			Result       []struct {
				FromName string `json:"from_name"`
				ToName   string `json:"to_name"`
				Type     string `json:"type"`
				Value    struct {
					X               float64  `json:"x"`
					Y               float64  `json:"y"`
					Width           float64  `json:"width"`
					Height          float64  `json:"height"`
					RectangleLabels []string `json:"rectanglelabels"`
				} `json:"value"`
			} `json:"result"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	require.Len(t, resp.Results[0].Result, 1)

	region := resp.Results[0].Result[0]
	assert.Equal(t, "label", region.FromName)
	assert.Equal(t, "image", region.ToName)
	assert.Equal(t, "rectanglelabels", region.Type)
	assert.Equal(t, []string{"tree"}, region.Value.RectangleLabels)
	assert.InDelta(t, 10.0, region.Value.X, 1e-9)
	assert.InDelta(t, 50.0, region.Value.Width, 1e-9)
	assert.Equal(t, "tree-yolov5s-test", resp.Results[0].ModelVersion)
}

func TestPredictHandlesEveryTask(t *testing.T) {
	detector := &fakeDetector{result: yolo.Result{ImageWidth: 10, ImageHeight: 10}}
	fetcher := &fakeFetcher{data: map[string][]byte{}}
	s := newTestServer(t, detector, fetcher)

	body := `{"tasks":[
		{"id":1,"data":{"image":"s3://b/a.jpg"}},
		{"id":2,"data":{"image":"s3://b/b.jpg"}}
	]}`
	rec := doRequest(s, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 2, detector.calls)
}

func TestPredictCachesByImageRef(t *testing.T) {
	detector := &fakeDetector{result: yolo.Result{ImageWidth: 10, ImageHeight: 10}}
	fetcher := &fakeFetcher{data: map[string][]byte{}}
	s := newTestServer(t, detector, fetcher)

	body := `{"tasks":[{"id":1,"data":{"image":"s3://b/a.jpg"}}]}`
	for i := 0; i < 3; i++ {
		rec := doRequest(s, http.MethodPost, "/predict", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, detector.calls)
}

func TestPredictBadRequests(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFetcher{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"tasks":`},
		{"no tasks", `{"tasks":[]}`},
		{"task without image", `{"tasks":[{"id":1,"data":{}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/predict", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPredictFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("bucket unavailable")}
	s := newTestServer(t, &fakeDetector{}, fetcher)

	body := `{"tasks":[{"id":1,"data":{"image":"s3://b/a.jpg"}}]}`
	rec := doRequest(s, http.MethodPost, "/predict", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPredictInferenceFailure(t *testing.T) {
	detector := &fakeDetector{err: fmt.Errorf("invoke failed")}
	fetcher := &fakeFetcher{data: map[string][]byte{}}
	s := newTestServer(t, detector, fetcher)

	body := `{"tasks":[{"id":1,"data":{"image":"s3://b/a.jpg"}}]}`
	rec := doRequest(s, http.MethodPost, "/predict", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookAcknowledges(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFetcher{})

	for _, path := range []string{"/webhook", "/train"} {
		rec := doRequest(s, http.MethodPost, path, `{"action":"ANNOTATION_CREATED"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ok")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDetector{}, &fakeFetcher{})

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "treedetect_http_requests_total")
}
