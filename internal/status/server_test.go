package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/models"
)

type fakeLister struct {
	tasks []*models.Task
}

func (f *fakeLister) Tasks() []*models.Task { return f.tasks }

type fakeStats struct {
	workers int
	queued  int
}

func (f *fakeStats) WorkerCount() int { return f.workers }
func (f *fakeStats) QueueLength() int { return f.queued }

func newTestServer(tasks []*models.Task, stats *fakeStats) *httptest.Server {
	s := NewServer(config.ServerConfig{}, &fakeLister{tasks: tasks}, stats, nil)
	return httptest.NewServer(s.Handler())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil, &fakeStats{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body healthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestStatus_ReportsTasksAndPoolFigures(t *testing.T) {
	task := models.NewTask("https://www.youtube.com/watch?v=abc", models.ClassificationSingleVideo, config.SettingsConfig{Format: "mp4"})
	task.Status = models.StatusDownloading
	task.Metadata = models.Metadata{Title: "My Video"}

	srv := newTestServer([]*models.Task{task}, &fakeStats{workers: 2, queued: 5})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if body.Workers != 2 || body.QueueLength != 5 {
		t.Fatalf("expected workers=2 queue_length=5, got %+v", body)
	}
	if len(body.Tasks) != 1 {
		t.Fatalf("expected one task summary, got %d", len(body.Tasks))
	}
	got := body.Tasks[0]
	if got.ID != task.ID || got.Status != models.StatusDownloading || got.Title != "My Video" {
		t.Fatalf("unexpected task summary: %+v", got)
	}
}

func TestStatus_EmptyTaskListIsAnEmptyArray(t *testing.T) {
	srv := newTestServer(nil, &fakeStats{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Tasks == nil || len(body.Tasks) != 0 {
		t.Fatalf("expected an empty, non-null tasks array, got %+v", body.Tasks)
	}
}
