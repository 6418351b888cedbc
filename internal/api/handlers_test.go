// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/skills"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/process"
	"github.com/ZSC714725/dropconvert/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeFFmpeg converts instantly unless block is set, in which case it waits
// for cancellation.
type fakeFFmpeg struct {
	block   bool
	started chan struct{}
	missing bool
}

func (f *fakeFFmpeg) Convert(ctx context.Context, job ffmpeg.Job, onProgress func(parse.Progress)) error {
	onProgress(parse.Progress{Name: job.Input, Known: true, Percent: 50, Text: "half"})
	if f.block {
		close(f.started)
		<-ctx.Done()
		return ffmpeg.ErrCancelled
	}
	return nil
}

func (f *fakeFFmpeg) Probe(ctx context.Context, input string) (float64, error) { return 10, nil }
func (f *fakeFFmpeg) Args(job ffmpeg.Job) []string                            { return nil }

func (f *fakeFFmpeg) Current() (process.Status, bool) {
	if f.block {
		return process.Status{State: "running", PID: 42}, true
	}
	return process.Status{}, false
}

func (f *fakeFFmpeg) Log() []process.Line {
	return []process.Line{{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Data: "out_time_us=1"}}
}

func (f *fakeFFmpeg) Skills(ctx context.Context) (skills.Skills, error) {
	if f.missing {
		return skills.Skills{}, ffmpeg.ErrEncoderNotFound
	}
	return skills.Skills{
		Binary:  "/usr/bin/ffmpeg",
		Version: "6.1",
		Audio:   []skills.Codec{{ID: "mp3", Name: "MP3", Encoders: []string{"libmp3lame"}}},
	}, nil
}

func (f *fakeFFmpeg) ReloadSkills(ctx context.Context) error {
	if f.missing {
		return ffmpeg.ErrEncoderNotFound
	}
	return nil
}

type testServer struct {
	router  *gin.Engine
	manager *task.Manager
	ff      *fakeFFmpeg
	hub     *notify.Hub
}

func newTestServer(t *testing.T, ff *fakeFFmpeg, rc RouterConfig) *testServer {
	t.Helper()

	hub := notify.NewHub(256)
	settings := config.NewSettings(config.ConvertConfig{Bitrates: []int{128, 192, 320}, Bitrate: 192})
	m, err := task.NewManager(task.Config{
		Converter:       ff,
		InputExtension:  ".mp4",
		Settings:        settings,
		OutputExtension: ".mp3",
		Notifier:        hub,
	})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	t.Cleanup(m.Close)

	h := NewHandler(Config{Manager: m, FFmpeg: ff, Settings: settings, Hub: hub, Codec: "libmp3lame"})
	return &testServer{router: NewRouter(h, rc), manager: m, ff: ff, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func waitRun(t *testing.T, m *task.Manager) task.RunInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := m.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() unexpected error: %v", err)
	}
	return info
}

func TestAddAndListItems(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})

	w := s.do(t, http.MethodPost, "/api/v1/items", DropRequest{
		Paths: "{/in/a b.mp4} /in/c.mp4 /in/d.mp3",
		Files: []string{"/in/c.mp4", "/in/e.mp4"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("POST items = %d %s", w.Code, w.Body.String())
	}
	var res task.DropResult
	decode(t, w, &res)
	if want := (task.DropResult{Added: 3, Rejected: 1, Duplicates: 1, Total: 3}); res != want {
		t.Errorf("DropResult = %+v, want %+v", res, want)
	}

	w = s.do(t, http.MethodGet, "/api/v1/items", nil)
	var items []task.Item
	decode(t, w, &items)
	if len(items) != 3 || items[0].Path != "/in/a b.mp4" || items[0].Status != task.StatusPending {
		t.Errorf("items = %+v", items)
	}

	w = s.do(t, http.MethodGet, "/api/v1/items/"+items[1].ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET item = %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/items/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET unknown item = %d, want 404", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/v1/items", DropRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST empty = %d, want 400", w.Code)
	}
}

func TestRemoveItems(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})
	s.manager.Add("/in/1.mp4", "/in/2.mp4", "/in/3.mp4")
	items := s.manager.Items()

	w := s.do(t, http.MethodDelete, "/api/v1/items?id="+items[0].ID+","+items[1].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE items = %d %s", w.Code, w.Body.String())
	}
	var res RemoveResponse
	decode(t, w, &res)
	if res.Removed != 2 || res.Total != 1 {
		t.Errorf("RemoveResponse = %+v", res)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/items", RemoveRequest{Paths: []string{"/in/3.mp4"}})
	decode(t, w, &res)
	if res.Removed != 1 || res.Total != 0 {
		t.Errorf("RemoveResponse = %+v", res)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/items", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("DELETE without ids = %d, want 400", w.Code)
	}
}

func TestRunCommands(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})

	w := s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "start"})
	if w.Code != http.StatusConflict {
		t.Errorf("start without items = %d, want 409", w.Code)
	}

	s.manager.Add("/in/1.mp4", "/in/2.mp4")
	w = s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "start"})
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d %s", w.Code, w.Body.String())
	}
	waitRun(t, s.manager)

	w = s.do(t, http.MethodGet, "/api/v1/run", nil)
	var run RunResponse
	decode(t, w, &run)
	if run.State != task.RunCompleted || run.Progress != 100 || run.Summary.Completed != 2 {
		t.Errorf("run = %+v", run)
	}
	if run.Encoder != nil {
		t.Errorf("encoder = %+v after the run", run.Encoder)
	}

	w = s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "cancel"})
	if w.Code != http.StatusConflict {
		t.Errorf("cancel while idle = %d, want 409", w.Code)
	}
	w = s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "restart"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown command = %d, want 400", w.Code)
	}
}

func TestCancelAndConflicts(t *testing.T) {
	ff := &fakeFFmpeg{block: true, started: make(chan struct{})}
	s := newTestServer(t, ff, RouterConfig{})
	s.manager.Add("/in/1.mp4", "/in/2.mp4")

	s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "start"})
	<-ff.started

	w := s.do(t, http.MethodGet, "/api/v1/run", nil)
	var run RunResponse
	decode(t, w, &run)
	if run.State != task.RunRunning || run.Encoder == nil || run.Encoder.PID != 42 {
		t.Errorf("run = %+v, want running with encoder", run)
	}

	w = s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "start"})
	if w.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", w.Code)
	}
	w = s.do(t, http.MethodDelete, "/api/v1/items?id=/in/2.mp4", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("remove while running = %d, want 409", w.Code)
	}

	w = s.do(t, http.MethodPut, "/api/v1/run/command", CommandRequest{Command: "cancel"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel = %d %s", w.Code, w.Body.String())
	}
	if info := waitRun(t, s.manager); info.State != task.RunCancelled {
		t.Errorf("state = %q, want cancelled", info.State)
	}
}

func TestRunLog(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})

	w := s.do(t, http.MethodGet, "/api/v1/run/log", nil)
	var report RunReport
	decode(t, w, &report)
	if len(report.Log) != 1 || report.Log[0] != [2]string{"2026-01-02 03:04:05.000", "out_time_us=1"} {
		t.Errorf("log = %q", report.Log)
	}
}

func TestSettings(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})

	dir := "/out"
	rate := 320
	w := s.do(t, http.MethodPut, "/api/v1/settings", SettingsRequest{OutputDir: &dir, Bitrate: &rate})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT settings = %d %s", w.Code, w.Body.String())
	}
	var v config.Values
	decode(t, w, &v)
	if v.OutputDir != "/out" || v.Bitrate != 320 {
		t.Errorf("settings = %+v", v)
	}

	bad := 111
	w = s.do(t, http.MethodPut, "/api/v1/settings", SettingsRequest{Bitrate: &bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid bitrate = %d, want 400", w.Code)
	}

	empty := ""
	s.do(t, http.MethodPut, "/api/v1/settings", SettingsRequest{OutputDir: &empty})
	decode(t, s.do(t, http.MethodGet, "/api/v1/settings", nil), &v)
	if v.OutputDir != "" || v.Bitrate != 320 {
		t.Errorf("settings after reset = %+v", v)
	}
}

func TestSkills(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})

	w := s.do(t, http.MethodGet, "/api/v1/skills", nil)
	var resp SkillsResponse
	decode(t, w, &resp)
	if resp.FFmpeg.Version != "6.1" || !resp.Encoder.Available || len(resp.Codecs.Audio) != 1 {
		t.Errorf("skills = %+v", resp)
	}

	missing := newTestServer(t, &fakeFFmpeg{missing: true}, RouterConfig{})
	w = missing.do(t, http.MethodPost, "/api/v1/skills/reload", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("reload without ffmpeg = %d, want 503", w.Code)
	}
}

func TestJWT(t *testing.T) {
	const secret = "s3cret"
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{JWTSecret: secret})

	w := s.do(t, http.MethodGet, "/api/v1/items", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	sign := func(key string, exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		raw, err := tok.SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return raw
	}

	w = s.do(t, http.MethodGet, "/api/v1/items", nil, "Authorization", "Bearer "+sign("wrong", time.Now().Add(time.Hour)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d, want 401", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/items", nil, "Authorization", "Bearer "+sign(secret, time.Now().Add(-time.Hour)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expired = %d, want 401", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/items", nil, "Authorization", "Bearer "+sign(secret, time.Now().Add(time.Hour)))
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
	w = s.do(t, http.MethodGet, "/api/v1/items?token="+sign(secret, time.Now().Add(time.Hour)), nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, &fakeFFmpeg{}, RouterConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := s.manager.Add("/in/a.mp4"); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var e struct {
		Type notify.Type `json:"type"`
		Data task.Item   `json:"data"`
	}
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Type != notify.ItemAdded || e.Data.Path != "/in/a.mp4" {
		t.Errorf("event = %+v, want item.added for /in/a.mp4", e)
	}
}
