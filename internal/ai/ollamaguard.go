package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ollamaProcessPatterns identify Ollama model processes in a process list.
var ollamaProcessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ollama.*run`),
	regexp.MustCompile(`(?i)ollama.*serve`),
	regexp.MustCompile(`(?i)ollama_llama_server`),
	regexp.MustCompile(`(?i)llama\.cpp`),
}

// OllamaProcess is one detected Ollama-related process.
type OllamaProcess struct {
	PID        int     `json:"pid"`
	Command    string  `json:"command"`
	ModelName  string  `json:"model_name,omitempty"`
	MemoryPct  float64 `json:"memory_pct,omitempty"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
}

// CleanupResult reports the outcome of a guard cleanup pass.
type CleanupResult struct {
	ProcessesFound  []OllamaProcess `json:"processes_found"`
	ProcessesKilled []int           `json:"processes_killed"`
	UnloadedModels  []string        `json:"unloaded_models"`
	Errors          []string        `json:"errors"`
	Timestamp       time.Time       `json:"timestamp"`
	Success         bool            `json:"success"`
}

// OllamaGuard reclaims local model resources between jobs. Every generate
// request already sets keep_alive=0; the guard handles servers and models
// that linger anyway.
type OllamaGuard struct {
	mu      sync.Mutex
	baseURL string
	last    *CleanupResult
	logger  zerolog.Logger
}

// NewOllamaGuard creates a guard for a local Ollama server.
func NewOllamaGuard(baseURL string, logger zerolog.Logger) *OllamaGuard {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaGuard{
		baseURL: baseURL,
		logger:  logger.With().Str("component", "ollama_guard").Logger(),
	}
}

// DetectProcesses scans the process table for Ollama model processes.
// The scan carries a bounded deadline; only pattern-matching processes are
// ever reported.
func (g *OllamaGuard) DetectProcesses(ctx context.Context) []OllamaProcess {
	ctx, cancel := context.WithTimeout(ctx, processInspectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "aux").Output()
	if err != nil {
		g.logger.Warn().Err(err).Msg("process scan failed")
		return nil
	}

	var processes []OllamaProcess
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}
	modelRe := regexp.MustCompile(`(?:run|serve)\s+(\S+)`)

	for _, line := range lines {
		matched := false
		for _, p := range ollamaProcessPatterns {
			if p.MatchString(line) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		cpu, _ := strconv.ParseFloat(fields[2], 64)
		mem, _ := strconv.ParseFloat(fields[3], 64)
		command := strings.Join(fields[10:], " ")
		if len(command) > 100 {
			command = command[:100]
		}
		proc := OllamaProcess{PID: pid, Command: command, CPUPercent: cpu, MemoryPct: mem}
		if m := modelRe.FindStringSubmatch(command); m != nil {
			proc.ModelName = m[1]
		}
		processes = append(processes, proc)
	}
	return processes
}

// loadedModels asks the server which models are resident.
func (g *OllamaGuard) loadedModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := newProbeHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: /api/ps returned %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// unloadModel sends a keep_alive=0 generate request so the server evicts
// the model immediately.
func (g *OllamaGuard) unloadModel(ctx context.Context, model string) error {
	body, _ := json.Marshal(map[string]any{
		"model":      model,
		"prompt":     "",
		"keep_alive": 0,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: unload %s returned %d", model, resp.StatusCode)
	}
	return nil
}

// UnloadAll evicts every resident model and returns their names.
func (g *OllamaGuard) UnloadAll(ctx context.Context) ([]string, []string) {
	models, err := g.loadedModels(ctx)
	if err != nil {
		return nil, []string{err.Error()}
	}
	var unloaded, errs []string
	for _, m := range models {
		if err := g.unloadModel(ctx, m); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		g.logger.Info().Str("model", m).Msg("unloaded model")
		unloaded = append(unloaded, m)
	}
	return unloaded, errs
}

// Cleanup unloads resident models and, when killLingering is set, sends
// SIGTERM to model processes that survive the unload.
func (g *OllamaGuard) Cleanup(ctx context.Context, killLingering bool) CleanupResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := CleanupResult{Timestamp: time.Now(), Success: true}
	unloaded, errs := g.UnloadAll(ctx)
	result.UnloadedModels = unloaded
	result.Errors = errs

	result.ProcessesFound = g.DetectProcesses(ctx)
	if killLingering {
		serveRe := regexp.MustCompile(`\bserve\b`)
		for _, proc := range result.ProcessesFound {
			// The serve process stays; only lingering model runners go.
			if !serveRe.MatchString(proc.Command) {
				if err := syscall.Kill(proc.PID, syscall.SIGTERM); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("kill %d: %v", proc.PID, err))
					continue
				}
				result.ProcessesKilled = append(result.ProcessesKilled, proc.PID)
			}
		}
	}

	result.Success = len(result.Errors) == 0
	g.last = &result
	return result
}

// LastCleanup returns the most recent cleanup result, if any.
func (g *OllamaGuard) LastCleanup() *CleanupResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
