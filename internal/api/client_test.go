package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"callsight/internal/api"
	"callsight/internal/pipeline"
	"callsight/internal/sink"
)

func TestClientProcessCallStreamsEvents(t *testing.T) {
	var gotTasks, gotFile, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.PathProcessCall || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotTasks = r.FormValue("tasks")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		gotFile = header.Filename + ":" + string(data)

		emitter := sink.NewSSE(w)
		for _, payload := range []pipeline.Payload{
			pipeline.CategoryResult{Category: "Billing"},
			pipeline.CompleteResult(pipeline.CompletionMessage),
		} {
			if err := emitter.Emit(r.Context(), pipeline.NewEvent(payload)); err != nil {
				t.Errorf("emit: %v", err)
			}
		}
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(audio, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	client, err := api.NewClient(server.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	var steps []pipeline.Step
	err = client.ProcessCall(context.Background(), audio, []string{"category"}, func(event pipeline.Event) error {
		steps = append(steps, event.Step)
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessCall: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotTasks != `["category"]` {
		t.Fatalf("tasks field = %q", gotTasks)
	}
	if gotFile != "call.wav:RIFF" {
		t.Fatalf("file part = %q", gotFile)
	}
	if len(steps) != 2 || steps[0] != pipeline.StepCategory || steps[1] != pipeline.StepComplete {
		t.Fatalf("unexpected steps: %v", steps)
	}
}

func TestClientProcessCallReportsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "tasks field is required"})
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(audio, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	client, err := api.NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = client.ProcessCall(context.Background(), audio, nil, func(pipeline.Event) error { return nil })
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadRequest || statusErr.Message != "tasks field is required" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestClientSessionNotFoundReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "session not found"})
	}))
	defer server.Close()

	client, err := api.NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	detail, err := client.Session(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if detail != nil {
		t.Fatalf("expected nil detail, got %+v", detail)
	}
}

func TestClientHistoryAndStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case api.PathHistory:
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			_ = json.NewEncoder(w).Encode(api.HistoryListResponse{Sessions: []api.SessionSummary{{ID: "abc", Status: "completed"}}})
		case api.PathStatus:
			_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, Ready: true, Stages: []api.StageHealth{{Name: "whisperx", Ready: true}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := api.NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	sessions, err := client.History(context.Background(), 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "abc" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || len(status.Stages) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := api.NewClient("  ", ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}
