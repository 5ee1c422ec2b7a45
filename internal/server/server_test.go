package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"callsight/internal/api"
	"callsight/internal/audioprobe"
	"callsight/internal/config"
	"callsight/internal/history"
	"callsight/internal/pipeline"
	"callsight/internal/server"
	"callsight/internal/sink"
	"callsight/internal/stage"
	"callsight/internal/testsupport"
)

type fakeEngine struct {
	mu        sync.Mutex
	sessions  []pipeline.Session
	uploadsOK []bool
}

func (f *fakeEngine) Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error {
	_, statErr := os.Stat(session.AudioPath)
	f.mu.Lock()
	f.sessions = append(f.sessions, session)
	f.uploadsOK = append(f.uploadsOK, statErr == nil)
	f.mu.Unlock()
	for _, payload := range []pipeline.Payload{
		pipeline.CategoryResult{Category: "Billing"},
		pipeline.CompleteResult(pipeline.CompletionMessage),
	} {
		if err := emitter.Emit(ctx, pipeline.NewEvent(payload)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) Health(context.Context) []stage.Health {
	return []stage.Health{stage.Healthy("whisperx"), stage.Unhealthy("pyannote", "hf_token not configured")}
}

func newServer(t *testing.T, cfg *config.Config, engine server.Engine, store *history.Store, prober *audioprobe.Prober) *server.Server {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	srv, err := server.New(server.Options{
		Config:  cfg,
		Engine:  engine,
		History: store,
		Prober:  prober,
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv
}

func uploadRequest(t *testing.T, path, fileName string, content []byte, tasks string, includeTasks bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if includeTasks {
		if err := form.WriteField("tasks", tasks); err != nil {
			t.Fatalf("write tasks: %v", err)
		}
	}
	if content != nil {
		part, err := form.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestProcessCallStreamsEventsAndRecordsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	engine := &fakeEngine{}
	srv := newServer(t, cfg, engine, store, nil)

	req := uploadRequest(t, api.PathProcessCall, "../calls/call one.wav", []byte("RIFF....WAVE"), `["category","Sentiment Analysis","bogus"]`, true)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if w.Header().Get(server.RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}

	var steps []pipeline.Step
	if err := sink.ReadFrames(w.Body, func(event pipeline.Event) error {
		steps = append(steps, event.Step)
		return nil
	}); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(steps) != 2 || steps[0] != pipeline.StepCategory || steps[1] != pipeline.StepComplete {
		t.Fatalf("unexpected steps: %v", steps)
	}

	if len(engine.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(engine.sessions))
	}
	session := engine.sessions[0]
	if !engine.uploadsOK[0] {
		t.Fatal("upload was not on disk while the session ran")
	}
	if _, err := os.Stat(session.AudioPath); !os.IsNotExist(err) {
		t.Fatalf("expected upload to be removed, stat err = %v", err)
	}
	if !session.Requested.Has(pipeline.StepCategory) || !session.Requested.Has(pipeline.StepSentiment) {
		t.Fatalf("unexpected requested stages: %v", session.Requested.Names())
	}
	if session.Requested.Len() != 2 {
		t.Fatalf("unknown stage names should be ignored, got %v", session.Requested.Names())
	}

	record, err := store.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if record == nil {
		t.Fatal("expected session to be stored")
	}
	if record.AudioName != "../calls/call one.wav" && record.AudioName != "call one.wav" {
		t.Fatalf("unexpected stored audio name %q", record.AudioName)
	}
	if record.Status != pipeline.StatusCompleted || record.Category != "Billing" {
		t.Fatalf("unexpected stored session: %+v", record.Session)
	}
	if record.AudioSHA256 == "" || len(record.Events) != 2 {
		t.Fatalf("expected digest and events, got %+v", record)
	}
}

// stallingEngine emits one event and then waits for the session context.
type stallingEngine struct{}

func (stallingEngine) Run(ctx context.Context, _ pipeline.Session, emitter pipeline.Emitter) error {
	if err := emitter.Emit(ctx, pipeline.NewEvent(pipeline.CategoryResult{Category: "Billing"})); err != nil {
		return err
	}
	<-ctx.Done()
	return emitter.Emit(ctx, pipeline.NewEvent(pipeline.CompleteResult(pipeline.CompletionMessage)))
}

func (stallingEngine) Health(context.Context) []stage.Health { return nil }

func TestProcessCallSessionTimeoutIsReported(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Server.SessionTimeoutSeconds = 1
	store := testsupport.MustOpenHistory(t, cfg)
	srv := newServer(t, cfg, stallingEngine{}, store, nil)

	req := uploadRequest(t, api.PathProcessCall, "call.wav", []byte("RIFF....WAVE"), `["category"]`, true)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var events []pipeline.Event
	if err := sink.ReadFrames(w.Body, func(event pipeline.Event) error {
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(events) != 2 || events[0].Step != pipeline.StepCategory || events[1].Step != pipeline.StepError {
		t.Fatalf("expected category then a final error frame, got %+v", events)
	}
	if msg, _ := events[1].Result.(pipeline.ErrorResult); !strings.Contains(string(msg), "timed out") {
		t.Fatalf("unexpected timeout message %q", msg)
	}

	records, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("store.List: %v", err)
	}
	if len(records) != 1 || records[0].Status != pipeline.StatusTimedOut {
		t.Fatalf("expected one timed_out session, got %+v", records)
	}
}

func TestProcessCallAlias(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	req := uploadRequest(t, "/process_call/", "call.wav", []byte("RIFF"), `[]`, true)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProcessCallRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name         string
		content      []byte
		tasks        string
		includeTasks bool
		want         string
	}{
		{name: "missing tasks", content: []byte("RIFF"), want: "tasks field is required"},
		{name: "invalid tasks", content: []byte("RIFF"), tasks: `"pii"`, includeTasks: true, want: "tasks must be a JSON array of stage names"},
		{name: "missing file", tasks: `["pii"]`, includeTasks: true, want: "file field is required"},
		{name: "empty file", content: []byte{}, tasks: `["pii"]`, includeTasks: true, want: "uploaded file is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			engine := &fakeEngine{}
			srv := newServer(t, cfg, engine, nil, nil)

			req := uploadRequest(t, api.PathProcessCall, "call.wav", tt.content, tt.tasks, tt.includeTasks)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if got := decodeError(t, w); got != tt.want {
				t.Fatalf("error = %q, want %q", got, tt.want)
			}
			if len(engine.sessions) != 0 {
				t.Fatal("engine should not run for rejected uploads")
			}
			entries, err := os.ReadDir(cfg.Paths.WorkDir)
			if err != nil {
				t.Fatalf("read work dir: %v", err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected work dir to be cleaned, found %d entries", len(entries))
			}
		})
	}
}

func TestProcessCallRejectsOversizedUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Server.MaxUploadMB = 1
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	req := uploadRequest(t, api.PathProcessCall, "call.wav", bytes.Repeat([]byte("a"), 2<<20), `["pii"]`, true)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProcessCallRejectsFilesWithoutAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	prober := audioprobe.New("ffprobe").WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"streams":[{"codec_type":"video"}],"format":{"duration":"3.0"}}`), nil
	})
	engine := &fakeEngine{}
	srv := newServer(t, cfg, engine, nil, prober)

	req := uploadRequest(t, api.PathProcessCall, "clip.mp4", []byte("not audio"), `["pii"]`, true)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if len(engine.sessions) != 0 {
		t.Fatal("engine should not run when ffprobe rejects the upload")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, api.PathProcessCall},
		{http.MethodPost, api.PathStatus},
		{http.MethodDelete, api.PathHistory},
	} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.path, w.Code)
		}
		if got := decodeError(t, w); got != "method not allowed" {
			t.Fatalf("%s %s: error = %q", tc.method, tc.path, got)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathStatus, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, api.PathStatus, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, api.PathStatus, nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", w.Code)
	}
}

func TestStatusReportsHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	srv := newServer(t, cfg, &fakeEngine{}, store, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathStatus, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected runtime info: %+v", status)
	}
	if status.Ready {
		t.Fatal("status should not be ready with an unhealthy adapter")
	}
	if len(status.Stages) != 2 || status.Stages[1].Detail == "" {
		t.Fatalf("unexpected stages: %+v", status.Stages)
	}
	if !status.HistoryEnabled || status.HistoryDBPath != cfg.Paths.HistoryDB {
		t.Fatalf("unexpected history info: %+v", status)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	finished := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	testsupport.SaveSession(t, store, "older", finished.Add(-time.Hour))
	testsupport.SaveSession(t, store, "newer", finished,
		pipeline.NewEvent(pipeline.CategoryResult{Category: "Support"}),
		pipeline.NewEvent(pipeline.CompleteResult(pipeline.CompletionMessage)),
	)
	srv := newServer(t, cfg, &fakeEngine{}, store, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathHistory+"?limit=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list api.HistoryListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].ID != "newer" {
		t.Fatalf("unexpected sessions: %+v", list.Sessions)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathHistory+"/newer", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var item api.HistoryItemResponse
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Session.Category != "Support" || len(item.Session.Events) != 2 {
		t.Fatalf("unexpected session detail: %+v", item.Session)
	}
	if _, ok := item.Session.Events[0].Result.(pipeline.CategoryResult); !ok {
		t.Fatalf("expected typed category payload, got %T", item.Session.Events[0].Result)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathHistory+"/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.PathHistory+"?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(server.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(server.RequestIDHeader); got != "req-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestStartServesOnBoundAddress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv := newServer(t, cfg, &fakeEngine{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
