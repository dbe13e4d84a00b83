package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-nms/api"
	"github.com/nvr-ai/go-nms/metrics"
	"github.com/nvr-ai/go-nms/models"
	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *metrics.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := postprocess.NewNMSConfig(postprocess.AlgorithmRotatedNMS, 0.5)
	require.NoError(t, err)
	m := metrics.NewManager()
	pp, err := postprocess.NewPostprocessor(postprocess.NewPostprocessorArgs{
		NMS:            cfg,
		ScoreThreshold: 0.3,
		MaxNum:         10,
		Logger:         zap.NewNop(),
		Recorder:       m,
	})
	require.NoError(t, err)
	return New(pp, m, zap.NewNop()), m
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Ping(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestServer_NMS(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("axis aligned", func(t *testing.T) {
		req := api.Request{}
		req.Boxes = [][]float32{{0, 0, 10, 10}, {1, 1, 11, 11}, {50, 50, 60, 60}}
		req.Scores = [][]float32{{0.9, 0.1}, {0.8, 0.1}, {0.1, 0.1}}

		rec := do(t, s.Handler(), http.MethodPost, "/api/nms", req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp api.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, 5, resp.Width)
		assert.Equal(t, [][]float32{{0, 0, 10, 10, 0.9}}, resp.Detections)
		assert.Equal(t, []int{0}, resp.Labels)
	})

	t.Run("rotated with overrides", func(t *testing.T) {
		thr := float32(0.05)
		req := api.Request{ScoreThreshold: &thr}
		req.Boxes = [][]float32{{5, 5, 4, 2, 0}}
		req.Scores = [][]float32{{0, 0.1, 0}}

		rec := do(t, s.Handler(), http.MethodPost, "/api/nms", req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp api.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 9, resp.Width)
		assert.Equal(t, [][]float32{{3, 4, 7, 4, 7, 6, 3, 6, 0.1}}, resp.Detections)
	})

	t.Run("no survivors", func(t *testing.T) {
		req := api.Request{}
		req.Boxes = [][]float32{{0, 0, 10, 10}}
		req.Scores = [][]float32{{0.1, 0.9}}

		rec := do(t, s.Handler(), http.MethodPost, "/api/nms", req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "detections")))
		assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "labels")))
	})
}

func mustField(t *testing.T, body []byte, key string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	return fields[key]
}

func TestServer_NMSErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		body     any
		wantKind string
	}{
		{
			name: "malformed json",
			body: `{"boxes": [[0, 0`,
		},
		{
			name:     "ragged boxes",
			body:     `{"boxes": [[0, 0, 1, 1], [0, 0, 1]], "scores": [[0.9, 0.1], [0.9, 0.1]]}`,
			wantKind: "shape_mismatch",
		},
		{
			name:     "row mismatch",
			body:     `{"boxes": [[0, 0, 1, 1]], "scores": [[0.9, 0.1], [0.9, 0.1]]}`,
			wantKind: "shape_mismatch",
		},
		{
			name:     "bad width",
			body:     `{"boxes": [[0, 0, 1, 1, 0, 0]], "scores": [[0.9, 0.1]]}`,
			wantKind: "invalid_box_encoding",
		},
		{
			name:     "unknown encoding",
			body:     `{"boxes": [[0, 0, 1, 1]], "scores": [[0.9, 0.1]], "encoding": {"kind": "hexagon"}}`,
			wantKind: "invalid_box_encoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, "/api/nms", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.ID)
			assert.Equal(t, tt.wantKind, resp.Kind)
		})
	}

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `nms_postprocess_errors_total{kind="shape_mismatch"} 1`), body)
	assert.True(t, strings.Contains(body, `nms_postprocess_http_requests_total{endpoint="/api/nms",method="POST",status_code="400"} 5`), body)
}

func TestServer_WithoutMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := postprocess.NewNMSConfig(postprocess.AlgorithmNMS, 0.5)
	require.NoError(t, err)
	pp, err := postprocess.NewPostprocessor(postprocess.NewPostprocessorArgs{NMS: cfg})
	require.NoError(t, err)

	s := New(pp, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodGet, "/api/ping", nil).Code)
}

func TestServer_WithLabels(t *testing.T) {
	s, _ := newTestServer(t)
	s.WithLabels(models.LabelSetDOTA)

	req := api.Request{}
	req.Boxes = [][]float32{{5, 5, 4, 2, 0}, {50, 50, 4, 2, 0}}
	req.Scores = [][]float32{{0, 0.9, 0, 0}, {0, 0, 0.8, 0}}

	rec := do(t, s.Handler(), http.MethodPost, "/api/nms", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []int{0, 1}, resp.Labels)
	assert.Equal(t, []string{"plane", "baseball-diamond"}, resp.Names)
}
