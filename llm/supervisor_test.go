package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Teichhofer/Marktview/utils"
)

func tagsServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		body := `{"models":[`
		for i, m := range models {
			if i > 0 {
				body += ","
			}
			body += `{"name":"` + m + `"}`
		}
		body += `]}`
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"http://127.0.0.1:11434/api/generate", "http://127.0.0.1:11434"},
		{"https://llm.example.com:8443/api/generate", "https://llm.example.com:8443"},
		{"http://localhost:11434", "http://localhost:11434"},
		{"not-a-url/", "not-a-url"},
	}

	for _, tt := range tests {
		if got := baseURL(tt.endpoint); got != tt.want {
			t.Errorf("baseURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestModelListed(t *testing.T) {
	srv := tagsServer(t, "llama3:8b", "gemma3:1b")

	sup := NewSupervisor(srv.URL+"/api/generate", "gemma3:1b", "true", utils.NewLogger())
	if !sup.modelListed() {
		t.Error("expected gemma3:1b to be listed")
	}

	sup = NewSupervisor(srv.URL+"/api/generate", "mistral:7b", "true", utils.NewLogger())
	if sup.modelListed() {
		t.Error("mistral:7b is not in the listing, modelListed should return false")
	}
}

func TestEnsureRunningShortCircuitsWhenModelPresent(t *testing.T) {
	srv := tagsServer(t, "gemma3:1b")

	sup := NewSupervisor(srv.URL+"/api/generate", "gemma3:1b", "true", utils.NewLogger())
	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning returned %v, want nil", err)
	}
	if sup.startedByUs {
		t.Error("supervisor must not launch a backend that is already serving the model")
	}
}

func TestEnsureRunningPullsMissingModel(t *testing.T) {
	srv := tagsServer(t) // reachable, but no models installed

	sup := NewSupervisor(srv.URL+"/api/generate", "gemma3:1b", "true", utils.NewLogger())
	sup.poll = 5 * time.Millisecond

	if err := sup.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("EnsureRunning returned %v, want nil", err)
	}
	if sup.startedByUs {
		t.Error("supervisor must not launch a backend that is already reachable")
	}
}

func TestEnsureRunningUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/api/generate"
	srv.Close() // port now refuses connections

	sup := NewSupervisor(endpoint, "gemma3:1b", "true", utils.NewLogger())
	sup.poll = 5 * time.Millisecond
	sup.deadline = 50 * time.Millisecond

	err := sup.EnsureRunning(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("EnsureRunning returned %v, want ErrServiceUnavailable", err)
	}
	if !sup.startedByUs {
		t.Error("supervisor should have attempted to launch the backend")
	}

	sup.Stop()
	if sup.cmd != nil || sup.startedByUs {
		t.Error("Stop should clear the managed process state")
	}
}

func TestEnsureRunningMissingBinary(t *testing.T) {
	knownPaths := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/homebrew/bin/ollama",
		"/snap/bin/ollama",
	}
	for _, p := range knownPaths {
		if _, err := os.Stat(p); err == nil {
			t.Skipf("ollama installed at %s", p)
		}
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/api/generate"
	srv.Close()

	t.Setenv("OLLAMA_BIN", "")
	t.Setenv("PATH", t.TempDir())

	sup := NewSupervisor(endpoint, "gemma3:1b", "", utils.NewLogger())
	if err := sup.EnsureRunning(context.Background()); !errors.Is(err, ErrBackendNotFound) {
		t.Fatalf("EnsureRunning returned %v, want ErrBackendNotFound", err)
	}
}

func TestResolveBinary(t *testing.T) {
	sup := NewSupervisor(DefaultEndpoint, DefaultModel, "/opt/custom/ollama", utils.NewLogger())
	if got, err := sup.resolveBinary(); err != nil || got != "/opt/custom/ollama" {
		t.Errorf("resolveBinary = %q, %v; want configured path", got, err)
	}

	t.Setenv("OLLAMA_BIN", "/tmp/env-ollama")
	sup = NewSupervisor(DefaultEndpoint, DefaultModel, "", utils.NewLogger())
	if got, err := sup.resolveBinary(); err != nil || got != "/tmp/env-ollama" {
		t.Errorf("resolveBinary = %q, %v; want OLLAMA_BIN value", got, err)
	}
}

func TestStopWithoutManagedBackend(t *testing.T) {
	sup := NewSupervisor(DefaultEndpoint, DefaultModel, "true", utils.NewLogger())
	sup.Stop()
	sup.Stop()
}
