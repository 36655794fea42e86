package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"sysward/internal/diagnose"
	"sysward/internal/telemetry"
)

const systemPrompt = "You are a Linux systems engineer reviewing one monitoring " +
	"cycle of a single host. Reply with at most three short sentences: the most " +
	"likely cause of any reported issue and one concrete next step. If the host " +
	"is healthy, say so in one sentence."

// Ollama talks to a local Ollama instance over its HTTP API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama builds a client for the given base URL and model name.
func NewOllama(baseURL, model string) *Ollama {
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Ping checks that the Ollama API answers at all. Used once at startup to
// decide whether the advisor stays enabled.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", o.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// EnsureModel pulls the configured model if the local instance does not have
// it yet. The pull is blocking and can take minutes on first run.
func (o *Ollama) EnsureModel(ctx context.Context) error {
	have, err := o.hasModel(ctx)
	if err != nil {
		return err
	}
	if have {
		return nil
	}
	log.Infof("ollama model %s not present, pulling", o.model)

	body, _ := json.Marshal(map[string]interface{}{"name": o.model, "stream": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("model pull failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("model pull returned %d: %s", resp.StatusCode, string(b))
	}

	// A 200 from the pull endpoint does not guarantee the model landed, so
	// re-list before declaring it usable.
	have, err = o.hasModel(ctx)
	if err != nil {
		return err
	}
	if !have {
		return fmt.Errorf("model %s still missing after pull", o.model)
	}
	log.Infof("ollama model %s ready", o.model)
	return nil
}

func (o *Ollama) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("listing models returned %d", resp.StatusCode)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, err
	}
	for _, m := range tags.Models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return true, nil
		}
	}
	return false, nil
}

// Analyze sends the cycle summary to the model and returns its reply.
func (o *Ollama) Analyze(ctx context.Context, snap *telemetry.Snapshot, diags *diagnose.Diagnostics) (string, error) {
	payload := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(snap, diags)},
		},
		"stream": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var chat struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("parsing ollama response: %w", err)
	}
	return strings.TrimSpace(chat.Message.Content), nil
}

// buildPrompt renders the cycle into a compact plain-text report. Kept
// deliberately terse so small local models stay focused.
func buildPrompt(snap *telemetry.Snapshot, diags *diagnose.Diagnostics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall status: %s\n", diags.Overall)
	for _, d := range diags.Domains {
		if d.Result.Status == diagnose.Nominal {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", d.Domain, d.Result.Status)
		for _, issue := range d.Result.Issues {
			fmt.Fprintf(&b, "  - %s: %s\n", issue.Kind, issue.Description)
		}
	}
	fmt.Fprintf(&b, "CPU %.1f%% (load %.2f/%.2f/%.2f, %d cores)\n",
		snap.CPU.Percent, snap.CPU.Load1, snap.CPU.Load5, snap.CPU.Load15, snap.CPU.CoresLogical)
	fmt.Fprintf(&b, "Memory %.1f%%, swap %.1f%%\n", snap.Memory.VirtualPercent, snap.Memory.SwapPercent)
	fmt.Fprintf(&b, "Disk %s %.1f%% used\n", snap.Disk.Path, snap.Disk.Percent)
	fmt.Fprintf(&b, "Network %.1f KB/s out, %.1f KB/s in, %d listening, %d established\n",
		snap.Network.SentKBps, snap.Network.RecvKBps, snap.Network.Listening, snap.Network.Established)
	fmt.Fprintf(&b, "Processes %d total, %d zombie\n", snap.Processes.Total, snap.Processes.Zombies)
	fmt.Fprintf(&b, "Uptime %s\n", (time.Duration(snap.UptimeSec) * time.Second).String())
	return b.String()
}
