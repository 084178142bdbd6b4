package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/traceperf/traceperf/pkg/writer"
)

const sampleTrace = `kworker/u16:0-12345  [002] d..1  100.000100: ufshcd_command: send_req: 8800000.ufshc: tag: 5, size: 4096, LBA: 40960, opcode: 0x2a, group_id: 0x0
kworker/u16:0-12345  [002] d..1  100.000350: ufshcd_command: complete_rsp: 8800000.ufshc: tag: 5, size: 4096, LBA: 40960, opcode: 0x2a, group_id: 0x0
`

func writeTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(path, []byte(sampleTrace), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeJobLifecycle(t *testing.T) {
	outDir := t.TempDir()
	srv := New(Options{OutputDir: outDir, Writer: writer.DefaultConfig()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(analyzeRequest{TracePath: writeTrace(t)})
	resp, err := http.Post(ts.URL+"/api/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" {
		t.Fatal("job ID is empty")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		got, err := srv.store.Get(context.Background(), job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == StatusCompleted {
			break
		}
		if got.Status == StatusFailed {
			t.Fatalf("job failed: %s", got.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(outDir, job.ID, writer.UfsFile)); err != nil {
		t.Fatalf("ufs parquet missing: %v", err)
	}

	sr, err := http.Get(ts.URL + "/api/jobs/" + job.ID + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Body.Close()
	if sr.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", sr.StatusCode)
	}
}

// Subscribers marshal event payloads while the job goroutine keeps
// updating status and progress; every published payload must be a
// snapshot, never the live job.
func TestJobEventsAreSnapshots(t *testing.T) {
	outDir := t.TempDir()
	srv := New(Options{OutputDir: outDir, Writer: writer.DefaultConfig()})

	job := &Job{
		ID:        "job-snap",
		TracePath: writeTrace(t),
		OutputDir: filepath.Join(outDir, "job-snap"),
		Status:    StatusPending,
		Created:   time.Now().UTC(),
		Updated:   time.Now().UTC(),
	}
	if err := srv.store.Put(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	ch := srv.broker.Subscribe(job.ID)
	defer srv.broker.Unsubscribe(job.ID, ch)

	go srv.runJob(job)

	deadline := time.After(10 * time.Second)
	var last Event
	for last.Type != "complete" && last.Type != "error" {
		select {
		case ev := <-ch:
			// Marshal on the subscriber side, as the SSE handler does.
			if _, err := json.Marshal(ev.Data); err != nil {
				t.Fatalf("marshal %s event: %v", ev.Type, err)
			}
			last = ev
		case <-deadline:
			t.Fatal("job never finished")
		}
	}

	if last.Type != "complete" {
		t.Fatalf("final event = %q, want complete", last.Type)
	}
	done, ok := last.Data.(Job)
	if !ok {
		t.Fatalf("complete payload is %T, want a Job value", last.Data)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("published status = %q, want %q", done.Status, StatusCompleted)
	}
}

func TestAnalyzeRejectsMissingPath(t *testing.T) {
	srv := New(Options{OutputDir: t.TempDir()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/analyze", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv := New(Options{OutputDir: t.TempDir()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/jobs/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("job1")
	c := b.Subscribe("job1")

	b.Publish("job1", Event{Type: "progress", Data: Progress{Stage: "parse", Percent: 50}})

	for _, ch := range []chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != "progress" {
				t.Fatalf("type = %q", ev.Type)
			}
		default:
			t.Fatal("subscriber missed event")
		}
	}

	b.Unsubscribe("job1", a)
	b.Unsubscribe("job1", c)
	if b.HasSubscribers("job1") {
		t.Fatal("subscribers remain after unsubscribe")
	}
}

func TestBrokerFullChannelDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("job1")
	defer b.Unsubscribe("job1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 256; i++ {
			b.Publish("job1", Event{Type: "progress"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber channel")
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	job := &Job{ID: "a", Status: StatusPending, Created: time.Now()}
	if err := s.Put(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	job.Status = StatusFailed
	got, err := s.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending {
		t.Fatalf("store leaked caller mutation: %s", got.Status)
	}
}
