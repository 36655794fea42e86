// Package advisor turns a monitoring cycle into a short operator-facing
// analysis using a local Ollama model. The advisor is strictly optional:
// every failure degrades to "no insight".
package advisor

import (
	"context"

	"sysward/internal/diagnose"
	"sysward/internal/telemetry"
)

// Advisor produces a human-readable reading of one monitoring cycle.
type Advisor interface {
	Analyze(ctx context.Context, snap *telemetry.Snapshot, diags *diagnose.Diagnostics) (string, error)
}

// Nop is an Advisor that never produces insight.
type Nop struct{}

func (Nop) Analyze(context.Context, *telemetry.Snapshot, *diagnose.Diagnostics) (string, error) {
	return "", nil
}
