package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysward/internal/diagnose"
	"sysward/internal/telemetry"
)

func testSnapshot() *telemetry.Snapshot {
	return &telemetry.Snapshot{
		Timestamp: time.Now(),
		CPU:       telemetry.CPUReading{Percent: 96, Load1: 7, Load5: 5, Load15: 3, CoresLogical: 4},
		Memory:    telemetry.MemoryReading{VirtualPercent: 60},
		Disk:      telemetry.DiskReading{Path: "/", Percent: 40},
		Processes: telemetry.ProcessReading{Total: 140, Zombies: 1},
		UptimeSec: 3600,
	}
}

func testDiags() *diagnose.Diagnostics {
	var r diagnose.Result
	r.Add(diagnose.IssueHighCPU, 96.0, "cpu usage 96.0% exceeds threshold 85.0%", diagnose.Critical)
	return &diagnose.Diagnostics{
		Overall: diagnose.Critical,
		Domains: []diagnose.DomainResult{{Domain: diagnose.DomainCPU, Result: r}},
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"models": []interface{}{}})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	assert.NoError(t, o.Ping(context.Background()))
}

func TestPingUnreachable(t *testing.T) {
	o := NewOllama("http://127.0.0.1:1", "gemma:2b")
	assert.Error(t, o.Ping(context.Background()))
}

func TestEnsureModelAlreadyPresent(t *testing.T) {
	pulled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "gemma:2b"}},
			})
		case "/api/pull":
			pulled = true
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	require.NoError(t, o.EnsureModel(context.Background()))
	assert.False(t, pulled, "present model must not be re-pulled")
}

func TestEnsureModelPullsMissing(t *testing.T) {
	var pullReq map[string]interface{}
	pulled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			// The model shows up in the listing only after the pull landed.
			models := []map[string]string{{"name": "llama3:8b"}}
			if pulled {
				models = append(models, map[string]string{"name": "gemma:2b"})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"models": models})
		case "/api/pull":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&pullReq))
			pulled = true
			json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	require.NoError(t, o.EnsureModel(context.Background()))
	assert.Equal(t, "gemma:2b", pullReq["name"])
}

func TestEnsureModelPullDidNotLand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "llama3:8b"}},
			})
		case "/api/pull":
			// Claims success but the model never appears in the listing.
			json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	err := o.EnsureModel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still missing after pull")
}

func TestAnalyze(t *testing.T) {
	var chatReq map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&chatReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "  CPU is saturated; inspect the top process.  "},
			"done":    true,
		})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	insight, err := o.Analyze(context.Background(), testSnapshot(), testDiags())
	require.NoError(t, err)
	assert.Equal(t, "CPU is saturated; inspect the top process.", insight)

	assert.Equal(t, "gemma:2b", chatReq["model"])
	assert.Equal(t, false, chatReq["stream"])
	msgs := chatReq["messages"].([]interface{})
	require.Len(t, msgs, 2)
	user := msgs[1].(map[string]interface{})
	assert.Contains(t, user["content"], "HIGH_CPU")
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "gemma:2b")
	_, err := o.Analyze(context.Background(), testSnapshot(), testDiags())
	assert.Error(t, err)
}

func TestBuildPromptSkipsNominalDomains(t *testing.T) {
	diags := testDiags()
	diags.Domains = append(diags.Domains, diagnose.DomainResult{Domain: diagnose.DomainMemory})

	prompt := buildPrompt(testSnapshot(), diags)

	assert.Contains(t, prompt, "Overall status: CRITICAL")
	assert.Contains(t, prompt, "cpu: CRITICAL")
	assert.NotContains(t, prompt, "memory: NOMINAL")
	assert.Contains(t, prompt, "Uptime 1h0m0s")
}

func TestNopAdvisor(t *testing.T) {
	insight, err := Nop{}.Analyze(context.Background(), testSnapshot(), testDiags())
	assert.NoError(t, err)
	assert.Empty(t, insight)
}
