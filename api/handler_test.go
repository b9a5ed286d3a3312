package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidconv/config"
	"vidconv/events"
	"vidconv/ffmpeg"
	"vidconv/media"
	"vidconv/preset"
	"vidconv/service"
	"vidconv/task"
)

type stubProber struct{}

func (stubProber) ProbeAll(ctx context.Context, paths []string) []media.ProbeResult {
	results := make([]media.ProbeResult, len(paths))
	for i, p := range paths {
		results[i] = media.ProbeResult{Path: p, Info: &media.FileInfo{
			Path:            p,
			Name:            filepath.Base(p),
			Width:           1280,
			Height:          720,
			Framerate:       25,
			Codec:           "h264",
			DurationSeconds: 30,
			Duration:        "00:00:30",
		}}
	}
	return results
}

type stubToolchain struct{}

func (stubToolchain) DetectEncoders(ctx context.Context, refresh bool) ([]ffmpeg.HWEncoder, error) {
	return []ffmpeg.HWEncoder{
		{ID: "hevc_vaapi", Name: "VAAPI", Available: true, Priority: 90},
		ffmpeg.SoftwareEncoder(),
	}, nil
}

func (stubToolchain) Version(ctx context.Context) (string, error) {
	return "ffmpeg version test", nil
}

// mockRunner blocks until release is closed so tests can observe a running batch.
type mockRunner struct {
	release chan struct{}
}

func (m *mockRunner) Encode(ctx context.Context, args []string, duration float64, onProgress func(ffmpeg.Progress)) (*ffmpeg.Result, error) {
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &ffmpeg.Result{OutputPath: args[len(args)-1]}, nil
}

type testEnv struct {
	router *gin.Engine
	cfg    *config.Config
	svc    *service.Service
	runner *mockRunner
	dir    string
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		OutputDir:         filepath.Join(dir, "out"),
		MaxConcurrency:    1,
		DurationTolerance: 1,
		AuthEnable:        false,
	}
	catalog, err := preset.NewCatalog(preset.Builtins())
	require.NoError(t, err)

	runner := &mockRunner{release: make(chan struct{})}
	t.Cleanup(func() {
		select {
		case <-runner.release:
		default:
			close(runner.release)
		}
	})
	tm, err := task.NewManager(cfg, runner, nil, nil)
	require.NoError(t, err)

	svc, err := service.New(service.Options{
		Config:    cfg,
		Catalog:   catalog,
		Prober:    stubProber{},
		Toolchain: stubToolchain{},
		Manager:   tm,
		Hub:       events.NewHub(16, nil),
	})
	require.NoError(t, err)

	return &testEnv{
		router: SetupRouter(svc, cfg, nil),
		cfg:    cfg,
		svc:    svc,
		runner: runner,
		dir:    dir,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) video(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleInfo(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do("GET", "/api/v1/info", "")
	require.Equal(t, http.StatusOK, w.Code)

	var info service.AppInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, service.AppName, info.AppName)
	assert.Equal(t, "ffmpeg version test", info.FFmpegVersion)
}

func TestHandleFiles(t *testing.T) {
	env := setupTestRouter(t)
	a := env.video(t, "a.mp4")
	b := env.video(t, "b.mov")

	w := env.do("POST", "/api/v1/files", jsonBody(t, gin.H{"paths": []string{a, b, filepath.Join(env.dir, "x.doc")}}))
	require.Equal(t, http.StatusOK, w.Code)
	var added service.AddFilesResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Len(t, added.Added, 2)
	assert.Len(t, added.Errors, 1)

	w = env.do("POST", "/api/v1/files", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/files/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)
	var files []media.FileInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	require.Len(t, files, 2)
	assert.Equal(t, "h264", files[0].Codec)

	w = env.do("GET", "/api/v1/files/duration-check", "")
	require.Equal(t, http.StatusOK, w.Code)
	var check media.DurationCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.False(t, check.HasMismatch)
	assert.Equal(t, "00:00:30", check.BaseDuration)

	w = env.do("POST", "/api/v1/selection/toggle", jsonBody(t, gin.H{"path": a}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, jsonBody(t, gin.H{"paths": []string{b}}), w.Body.String())

	w = env.do("POST", "/api/v1/selection/all", "")
	assert.JSONEq(t, jsonBody(t, gin.H{"paths": []string{a, b}}), w.Body.String())

	w = env.do("DELETE", "/api/v1/selection", "")
	assert.JSONEq(t, `{"paths":[]}`, w.Body.String())

	w = env.do("POST", "/api/v1/files/remove", jsonBody(t, gin.H{"path": a}))
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do("POST", "/api/v1/files/remove", jsonBody(t, gin.H{"path": a}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("DELETE", "/api/v1/files", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do("GET", "/api/v1/files", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleSettings(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/api/v1/presets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var presets struct {
		Presets  []preset.Preset `json:"presets"`
		Selected string          `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presets))
	assert.Len(t, presets.Presets, len(preset.Builtins()))
	assert.Equal(t, preset.DefaultName, presets.Selected)

	w = env.do("PUT", "/api/v1/presets/selected", `{"name":"Missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do("PUT", "/api/v1/presets/selected", `{"name":"HEVC 4K|60p"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("PUT", "/api/v1/output-folder", jsonBody(t, gin.H{"path": filepath.Join(env.dir, "nope")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do("PUT", "/api/v1/output-folder", jsonBody(t, gin.H{"path": env.dir}))
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do("GET", "/api/v1/output-folder", "")
	assert.JSONEq(t, jsonBody(t, gin.H{"path": env.dir}), w.Body.String())

	w = env.do("GET", "/api/v1/encoders?refresh=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"selected":"hevc_vaapi"`)

	w = env.do("PUT", "/api/v1/encoders/selected", `{"id":"hevc_nvenc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do("PUT", "/api/v1/encoders/selected", `{"id":"libx265"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEncodingLifecycle(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("POST", "/api/v1/encoding", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "no files selected")

	env.svc.AddFiles([]string{env.video(t, "a.mp4"), env.video(t, "b.mp4")})

	w = env.do("POST", "/api/v1/encoding", `{"preset":"Missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("POST", "/api/v1/encoding", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		BatchID string     `json:"batchId"`
		Jobs    []task.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.NotEmpty(t, started.BatchID)
	require.Len(t, started.Jobs, 2)

	w = env.do("POST", "/api/v1/encoding", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("GET", "/api/v1/jobs/"+started.Jobs[1].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do("GET", "/api/v1/jobs/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("PATCH", "/api/v1/jobs/"+started.Jobs[1].ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do("PATCH", "/api/v1/jobs/"+started.Jobs[1].ID+"/cancel", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/v1/encoding", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isEncoding":true`)

	w = env.do("DELETE", "/api/v1/encoding", "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Eventually(t, func() bool { return !env.svc.IsEncoding() }, 3*time.Second, 10*time.Millisecond)
	w = env.do("DELETE", "/api/v1/encoding", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do("GET", "/api/v1/jobs", "")
	var jobs []task.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, task.StatusCancelled, j.Status)
	}
}

func TestHandleHistory(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do("GET", "/api/v1/history?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do("GET", "/api/v1/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(task.ErrBatchRunning))
	assert.Equal(t, http.StatusBadRequest, statusFor(task.ErrNoFiles))
	assert.Equal(t, http.StatusNotFound, statusFor(service.ErrPresetNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}

func TestEventStream(t *testing.T) {
	env := setupTestRouter(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.svc.Hub().SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.svc.ClearFiles()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.FilesCleared, ev.Type)
	assert.NotZero(t, ev.Timestamp)
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestRouter(t)
	cfg := env.cfg

	t.Run("Auth disabled", func(t *testing.T) {
		cfg.AuthEnable = false
		w := env.do("GET", "/api/v1/jobs", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Auth enabled, no token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := env.do("GET", "/api/v1/jobs", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Auth enabled, wrong token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/jobs", nil)
		req.Header.Set("Authorization", "Bearer wrong-key")
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Auth enabled, correct token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/jobs", nil)
		req.Header.Set("Authorization", "Bearer secret")
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Auth enabled, query token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := env.do("GET", "/api/v1/jobs?token=secret", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Health stays open", func(t *testing.T) {
		cfg.AuthEnable = true
		w := env.do("GET", "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
