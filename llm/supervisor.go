package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Teichhofer/Marktview/utils"
)

// Default Ollama setup. A lightweight text generation model keeps startup
// fast while still supporting the /api/generate endpoint.
const (
	DefaultModel    = "gemma3:1b"
	DefaultEndpoint = "http://127.0.0.1:11434/api/generate"
	DefaultTimeout  = 30 * time.Second
)

const (
	probeTimeout  = 3 * time.Second
	readyPoll     = 500 * time.Millisecond
	readyDeadline = 20 * time.Second
	stopGrace     = 5 * time.Second
)

// Supervisor lazily starts and manages a local Ollama server. It only ever
// tears down a backend it launched itself; externally managed servers are
// probed but never touched.
type Supervisor struct {
	baseURL string
	model   string
	binary  string
	logger  *utils.Logger
	probe   *http.Client

	poll     time.Duration
	deadline time.Duration

	mu          sync.Mutex
	cmd         *exec.Cmd
	waitDone    chan error
	startedByUs bool
}

// NewSupervisor creates a Supervisor for the backend behind endpoint.
// binary may be empty; the executable is then resolved from OLLAMA_BIN, the
// PATH, and well-known install locations.
func NewSupervisor(endpoint, model, binary string, logger *utils.Logger) *Supervisor {
	return &Supervisor{
		baseURL:  baseURL(endpoint),
		model:    model,
		binary:   binary,
		logger:   logger,
		probe:    &http.Client{Timeout: probeTimeout},
		poll:     readyPoll,
		deadline: readyDeadline,
	}
}

// EnsureRunning makes sure the backend is reachable and the model is
// available. It returns immediately when a reachable server already lists
// the model; otherwise it launches the backend, waits for it to answer, and
// pulls the model.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	s.mu.Lock()
	reachable := s.isReachable()

	binary, err := s.resolveBinary()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if !reachable {
		if err := s.launch(binary); err != nil {
			s.mu.Unlock()
			return err
		}
	} else if s.modelListed() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.waitUntilReady(ctx); err != nil {
		return err
	}
	return s.pullModel(ctx, binary)
}

// Stop terminates a backend started by this supervisor: SIGTERM, a grace
// period, then SIGKILL. It is a no-op for externally managed backends and is
// safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.startedByUs {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.waitDone:
		case <-time.After(stopGrace):
			_ = s.cmd.Process.Kill()
			<-s.waitDone
		}
		s.logger.Info("[llm] Local inference backend stopped")
	}
	s.cmd = nil
	s.waitDone = nil
	s.startedByUs = false
}

func (s *Supervisor) isReachable() bool {
	resp, err := s.probe.Get(s.baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// modelListed checks whether the requested model already appears in the
// backend's model listing.
func (s *Supervisor) modelListed() bool {
	resp, err := s.probe.Get(s.baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == s.model {
			return true
		}
	}
	return false
}

func (s *Supervisor) launch(binary string) error {
	threads := suggestedThreadCount()

	cmd := exec.Command(binary, "serve")
	cmd.Env = append(os.Environ(), "OLLAMA_NUM_THREADS="+strconv.Itoa(threads))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %q: %v", ErrServiceUnavailable, binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	s.cmd = cmd
	s.waitDone = done
	s.startedByUs = true
	s.logger.Info("[llm] Started local inference backend with %d threads (pid %d)", threads, cmd.Process.Pid)
	return nil
}

func (s *Supervisor) waitUntilReady(ctx context.Context) error {
	deadline := time.Now().Add(s.deadline)
	for time.Now().Before(deadline) {
		if s.isReachable() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
	return fmt.Errorf("%w: backend did not answer within %v", ErrServiceUnavailable, s.deadline)
}

func (s *Supervisor) pullModel(ctx context.Context, binary string) error {
	s.logger.Info("[llm] Pulling model %q", s.model)
	cmd := exec.CommandContext(ctx, binary, "pull", s.model)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: pull of model %q failed: %v", ErrServiceUnavailable, s.model, err)
	}
	return nil
}

// resolveBinary locates the backend executable. An explicitly configured
// path is trusted as-is.
func (s *Supervisor) resolveBinary() (string, error) {
	if s.binary != "" {
		return s.binary, nil
	}
	if bin := os.Getenv("OLLAMA_BIN"); bin != "" {
		return bin, nil
	}
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	paths := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/homebrew/bin/ollama",
		"/snap/bin/ollama",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrBackendNotFound
}

func suggestedThreadCount() int {
	n := (runtime.NumCPU() + 1) / 2
	if n < 1 {
		n = 1
	}
	return n
}

// baseURL reduces an endpoint URL to scheme://host for status probes.
func baseURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(endpoint, "/")
	}
	return u.Scheme + "://" + u.Host
}
