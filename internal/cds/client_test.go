package cds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/cmip6-download/internal/cmip6"
)

func testOptions(url string) Options {
	opts := DefaultOptions()
	opts.URL = url
	opts.Key = "secret-key"
	opts.PollInterval = time.Millisecond
	opts.PollMaxInterval = 5 * time.Millisecond
	opts.HTTP.Backoff = BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	return opts
}

func testRequest() cmip6.Request {
	return cmip6.NewRequest(cmip6.DefaultCatalog(), cmip6.Triple{
		Model:    "access_cm2",
		Scenario: "historical",
		Variable: "precipitation",
	})
}

// fakeDataStore mimics the Retrieve API: a job runs for a couple of polls
// and then serves a download link.
type fakeDataStore struct {
	t        *testing.T
	payload  []byte
	polls    atomic.Int32
	submits  atomic.Int32
	failWith string

	mu     sync.Mutex
	inputs map[string]any
}

func (f *fakeDataStore) submitted() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs
}

func (f *fakeDataStore) handler(srvURL *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /retrieve/v1/processes/{dataset}/execution", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		if r.Header.Get("PRIVATE-TOKEN") != "secret-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"title":"Unauthorized","detail":"bad key"}`))
			return
		}
		if r.PathValue("dataset") != "projections-cmip6" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body struct {
			Inputs map[string]any `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode submit body: %v", err)
		}
		f.mu.Lock()
		f.inputs = body.Inputs
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"jobID":"job-1","status":"accepted"}`))
	})
	mux.HandleFunc("GET /retrieve/v1/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		status := "running"
		if n >= 2 {
			status = "successful"
			if f.failWith != "" {
				status = "failed"
			}
		}
		fmt.Fprintf(w, `{"jobID":"job-1","status":%q}`, status)
	})
	mux.HandleFunc("GET /retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		if f.failWith != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"title":"The job has failed","detail":%q}`, f.failWith)
			return
		}
		fmt.Fprintf(w, `{"asset":{"value":{"href":%q,"file:size":%d,"type":"application/zip"}}}`,
			*srvURL+"/download/job-1.zip", len(f.payload))
	})
	mux.HandleFunc("GET /download/job-1.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(f.payload)
	})
	return mux
}

func newFakeServer(t *testing.T, f *fakeDataStore) *httptest.Server {
	t.Helper()
	f.t = t
	var u string
	srv := httptest.NewUnstartedServer(f.handler(&u))
	u = "http://" + srv.Listener.Addr().String()
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func TestRetrieveAndDownload(t *testing.T) {
	f := &fakeDataStore{payload: []byte("PK-fake-archive-bytes")}
	srv := newFakeServer(t, f)

	c := NewClient(testOptions(srv.URL))
	res, err := c.Retrieve(context.Background(), "projections-cmip6", testRequest())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	inputs := f.submitted()
	if got := inputs["experiment"]; got != "historical" {
		t.Fatalf("expected experiment historical, got %v", got)
	}
	if got := inputs["temporal_resolution"]; got != "monthly" {
		t.Fatalf("expected monthly resolution, got %v", got)
	}
	years, _ := inputs["year"].([]any)
	if len(years) != 165 || years[0] != "1850" || years[164] != "2014" {
		t.Fatalf("unexpected years in submitted request: %d entries", len(years))
	}
	if f.polls.Load() < 2 {
		t.Fatalf("expected the job to be polled until successful, got %d polls", f.polls.Load())
	}

	path := filepath.Join(t.TempDir(), "out.zip")
	if err := res.Download(context.Background(), path); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(got) != string(f.payload) {
		t.Fatalf("downloaded %q, want %q", got, f.payload)
	}

	matches, _ := filepath.Glob(path + ".*.part")
	if len(matches) != 0 {
		t.Fatalf("expected temp files to be cleaned up, found %v", matches)
	}
}

func TestRetrieveFailedJob(t *testing.T) {
	f := &fakeDataStore{failWith: "model access_cm2 has no ssp1_1_9 data"}
	srv := newFakeServer(t, f)

	c := NewClient(testOptions(srv.URL))
	_, err := c.Retrieve(context.Background(), "projections-cmip6", testRequest())
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "has no ssp1_1_9 data") {
		t.Fatalf("expected upstream reason in error, got %q", err.Error())
	}
}

func TestRetrieveRejectsBadKeyWithoutRetry(t *testing.T) {
	f := &fakeDataStore{}
	srv := newFakeServer(t, f)

	opts := testOptions(srv.URL)
	opts.Key = "wrong"
	c := NewClient(opts)

	_, err := c.Retrieve(context.Background(), "projections-cmip6", testRequest())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if !strings.Contains(se.Message, "bad key") {
		t.Fatalf("expected API detail in message, got %q", se.Message)
	}
	if n := f.submits.Load(); n != 1 {
		t.Fatalf("expected exactly one submit attempt, got %d", n)
	}
}

func TestRetrieveMissingKey(t *testing.T) {
	opts := testOptions("http://127.0.0.1:1")
	opts.Key = ""
	c := NewClient(opts)

	if _, err := c.Retrieve(context.Background(), "projections-cmip6", testRequest()); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jobID":"x","status":"successful"}`))
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL))
	var j job
	if err := c.doJSON(context.Background(), c.newCircuit("test"), http.MethodGet, srv.URL+"/anything", nil, &j); err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if j.Status != "successful" {
		t.Fatalf("unexpected job: %+v", j)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestDownloadSizeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL))
	res := &Result{client: c, JobID: "j", Href: srv.URL + "/f.zip", Size: 1000}

	path := filepath.Join(t.TempDir(), "f.zip")
	if err := res.Download(context.Background(), path); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no archive at %s after a short download", path)
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	b := BackoffConfig{InitialInterval: time.Second, MaxInterval: 5 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(b, tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: got %v want %v", tt.attempt, got, tt.want)
		}
	}
}
