package mockbackend

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(cfg *Config) *Server {
	return NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func submitForm(t *testing.T, s *Server, fields map[string]string) (int, map[string]any) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/start-video-generation", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func checkStatus(t *testing.T, s *Server, jobID string) map[string]any {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/check-status/"+jobID+"?t=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func fields(shop string) map[string]string {
	return map[string]string{
		"image_urls": `["a.jpg","b.jpg"]`,
		"duration":   "15",
		"shop_name":  shop,
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(&Config{})

	assert.Equal(t, 20, s.config.ProgressStep)
	assert.Equal(t, "/videos/", s.config.VideoPrefix)
}

func TestServer_JobLifecycle(t *testing.T) {
	s := newTestServer(&Config{ProgressStep: 40})

	code, resp := submitForm(t, s, fields("demo-shop"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.BackendStatusQueued, resp["status"])
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)

	first := checkStatus(t, s, jobID)
	assert.Equal(t, domain.BackendStatusProcessing, first["status"])
	assert.EqualValues(t, 40, first["progress"])

	second := checkStatus(t, s, jobID)
	assert.EqualValues(t, 80, second["progress"])

	last := checkStatus(t, s, jobID)
	assert.Equal(t, domain.BackendStatusDone, last["status"])
	assert.EqualValues(t, 100, last["progress"])
	assert.Equal(t, "/videos/"+jobID+".mp4", last["url"])

	subs := s.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, subs[0].Images)
	assert.Equal(t, "demo-shop", subs[0].Fields["shop_name"])
}

func TestServer_FailShops(t *testing.T) {
	s := newTestServer(&Config{ProgressStep: 25, FailShops: []string{"broken"}})

	_, resp := submitForm(t, s, fields("broken"))
	jobID := resp["job_id"].(string)

	assert.Equal(t, domain.BackendStatusProcessing, checkStatus(t, s, jobID)["status"])

	failed := checkStatus(t, s, jobID)
	assert.Equal(t, domain.BackendStatusFailed, failed["status"])
	assert.Equal(t, "render engine crashed", failed["error"])
}

func TestServer_RejectsSubmissions(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		fields   map[string]string
		wantCode int
	}{
		{
			name:     "rejected shop",
			config:   &Config{RejectShops: []string{"banned"}},
			fields:   fields("banned"),
			wantCode: http.StatusOK,
		},
		{
			name:     "empty image list",
			config:   &Config{},
			fields:   map[string]string{"image_urls": "[]", "duration": "15"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "duration not a number",
			config:   &Config{},
			fields:   map[string]string{"image_urls": `["a.jpg"]`, "duration": "long"},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.config)

			code, resp := submitForm(t, s, tt.fields)

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, "error", resp["status"])
			assert.NotEmpty(t, resp["error"])
			assert.Empty(t, s.Submissions())
		})
	}
}

func TestServer_UnknownJobFails(t *testing.T) {
	s := newTestServer(&Config{})

	resp := checkStatus(t, s, "missing")

	assert.Equal(t, domain.BackendStatusFailed, resp["status"])
	assert.Equal(t, "job not found", resp["error"])
}

func TestServer_ServesVideos(t *testing.T) {
	s := newTestServer(&Config{})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/J1.mp4", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
}
